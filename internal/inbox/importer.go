// Package inbox imports YAML contact cards from a watched directory.
//
// Cards are upserted by file_number. Links in a card name other contacts by
// file number and are applied after every card of the file exists, so a file
// may link contacts it creates itself. A file is imported again only when its
// checksum changes.
//
// Cards that could not be applied are listed in a report written next to the
// file, named after it with a ".rejected" suffix. The report is removed once
// the file imports cleanly or is deleted.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/checksum"
	"github.com/starford/dossier/internal/contactservice"
	"github.com/starford/dossier/internal/models"
	"github.com/starford/dossier/internal/parser"
	"github.com/starford/dossier/internal/storage"
	"github.com/starford/dossier/internal/store"
)

// Result counts what one import did.
type Result struct {
	Path     string      `json:"path"`
	Created  int         `json:"created"`
	Updated  int         `json:"updated"`
	Failed   int         `json:"failed"`
	Skipped  bool        `json:"skipped"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Rejection explains why a card was not applied. FileNumber is empty when
// the whole file failed to parse.
type Rejection struct {
	FileNumber string `json:"file_number,omitempty" yaml:"file_number,omitempty"`
	Reason     string `json:"reason" yaml:"reason"`
}

const rejectedSuffix = ".rejected"

func (r *Result) add(o Result) {
	r.Created += o.Created
	r.Updated += o.Updated
	r.Failed += o.Failed
}

// EventCallback is called after a file has been imported.
type EventCallback func(Result)

// Importer applies card files to the contact service.
type Importer struct {
	svc    *contactservice.Service
	db     *store.DB
	files  storage.Provider
	logger *slog.Logger
	cb     EventCallback
}

// NewImporter creates an importer. cb may be nil.
func NewImporter(svc *contactservice.Service, db *store.DB, files storage.Provider, logger *slog.Logger, cb EventCallback) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{svc: svc, db: db, files: files, logger: logger, cb: cb}
}

// Sync imports every card file in the inbox whose checksum changed since its
// last import. With force set, unchanged files are imported too. Failures in
// one file are logged and do not stop the others.
func (im *Importer) Sync(ctx context.Context, force bool) (Result, error) {
	metas, err := im.files.List("")
	if err != nil {
		return Result{}, err
	}
	var total Result
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := im.ImportFile(ctx, m.Path, force)
		if err != nil {
			im.logger.Warn("sync: import failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			total.Failed++
			continue
		}
		total.add(res)
	}
	return total, nil
}

// ImportFile reads, parses and applies one card file. A parse error rejects
// the whole file. Card-level failures are counted in Result.Failed, and a file
// with failures is not recorded so that the next change retries it.
func (im *Importer) ImportFile(ctx context.Context, path string, force bool) (Result, error) {
	res := Result{Path: path}
	data, err := im.files.Read(path)
	if err != nil {
		return res, err
	}
	sum := checksum.Sum(data)
	if !force {
		prev, err := im.db.ImportChecksum(ctx, path)
		if err != nil {
			return res, err
		}
		if prev == sum {
			res.Skipped = true
			return res, nil
		}
	}

	cards, err := parser.Parse(data)
	if err != nil {
		im.writeRejections(path, []Rejection{{Reason: err.Error()}})
		return res, err
	}

	ids := make(map[string]int64, len(cards))
	for _, card := range cards {
		id, created, err := im.upsert(ctx, card)
		if err != nil {
			if isStorageFailure(err) {
				return res, err
			}
			res.reject(im.cardFailed(path, card.FileNumber, err))
			continue
		}
		ids[card.FileNumber] = id
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	for _, card := range cards {
		id, ok := ids[card.FileNumber]
		if !ok {
			continue
		}
		if err := im.link(ctx, id, card, ids); err != nil {
			if isStorageFailure(err) {
				return res, err
			}
			res.reject(im.cardFailed(path, card.FileNumber, err))
		}
	}
	im.writeRejections(path, res.Rejected)

	if res.Failed == 0 {
		if err := im.db.RecordImport(ctx, path, sum); err != nil {
			return res, err
		}
	}
	im.logger.Info("inbox: imported",
		slog.String("path", path),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("failed", res.Failed))
	if im.cb != nil {
		im.cb(res)
	}
	return res, nil
}

// Forget drops the import record and the rejection report of path.
// Contacts imported from it stay.
func (im *Importer) Forget(ctx context.Context, path string) error {
	im.writeRejections(path, nil)
	return im.db.ForgetImport(ctx, path)
}

// writeRejections replaces the report of path, or removes it when nothing
// was rejected. Report failures are logged; they never fail the import.
func (im *Importer) writeRejections(path string, rejected []Rejection) {
	report := path + rejectedSuffix
	if len(rejected) == 0 {
		if err := im.files.Delete(report); err != nil && !errors.Is(err, fs.ErrNotExist) {
			im.logger.Warn("inbox: remove rejection report failed", slog.String("path", report), slog.String("error", err.Error()))
		}
		return
	}
	body, err := yaml.Marshal(rejected)
	if err != nil {
		im.logger.Warn("inbox: encode rejection report failed", slog.String("path", report), slog.String("error", err.Error()))
		return
	}
	content := append([]byte("# cards of "+path+" that were not applied\n"), body...)
	if err := im.files.Write(report, content); err != nil {
		im.logger.Warn("inbox: write rejection report failed", slog.String("path", report), slog.String("error", err.Error()))
	}
}

// upsert writes every field of the card except its links. An existing
// contact keeps its current links until the link pass.
func (im *Importer) upsert(ctx context.Context, card parser.Card) (int64, bool, error) {
	existing, err := im.svc.FindByFileNumber(ctx, card.FileNumber)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c, err := im.svc.Create(ctx, card.Input(nil))
		if err != nil {
			return 0, false, err
		}
		return c.ID, true, nil
	case err != nil:
		return 0, false, err
	}
	c, err := im.svc.Update(ctx, existing.ID, card.Input(existing.LinkedClients))
	if err != nil {
		return 0, false, err
	}
	return c.ID, false, nil
}

// link replaces the contact's links with the card's, resolving file numbers
// against this file first and the directory second.
func (im *Importer) link(ctx context.Context, id int64, card parser.Card, local map[string]int64) error {
	links := make([]int64, 0, len(card.LinkedClients))
	for _, ref := range card.LinkedClients {
		if to, ok := local[ref]; ok {
			links = append(links, to)
			continue
		}
		c, err := im.svc.FindByFileNumber(ctx, ref)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NewValidation("linked_clients", fmt.Sprintf("unknown file number %s", ref))
		}
		if err != nil {
			return err
		}
		links = append(links, c.ID)
	}

	current, err := im.svc.Get(ctx, id)
	if err != nil {
		return err
	}
	if sameLinks(current.LinkedClients, links) {
		return nil
	}
	_, err = im.svc.Patch(ctx, id, models.ContactPatch{LinkedClients: &links})
	return err
}

func (im *Importer) cardFailed(path, fileNumber string, err error) Rejection {
	im.logger.Warn("inbox: card rejected",
		slog.String("path", path),
		slog.String("file_number", fileNumber),
		slog.String("error", err.Error()))
	return Rejection{FileNumber: fileNumber, Reason: err.Error()}
}

func (r *Result) reject(rej Rejection) {
	r.Failed++
	r.Rejected = append(r.Rejected, rej)
}

func sameLinks(a, b []int64) bool {
	a = slices.Clone(a)
	b = slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

func isStorageFailure(err error) bool {
	return errors.Is(err, apperr.ErrStorageUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
