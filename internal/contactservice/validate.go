package contactservice

import (
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/dossier/internal/apperr"
	"github.com/starford/dossier/internal/models"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{4,15}$`)

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps digits and a leading plus sign.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	if strings.HasPrefix(s, "+") {
		b.WriteByte('+')
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeFileNumber(s string) string {
	return strings.TrimSpace(s)
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// normalize rewrites c into its stored form. Empty statuses take their defaults.
func normalize(c *models.Contact) {
	c.FileNumber = normalizeFileNumber(c.FileNumber)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.MiddleName = optional(c.MiddleName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = NormalizeEmail(c.Email)
	c.PhoneNumber = NormalizePhone(c.PhoneNumber)
	c.Address = strings.TrimSpace(c.Address)
	c.Company = optional(c.Company)
	if c.FileStatus == "" {
		c.FileStatus = models.FileOpen
	}
	if c.ClientStatus == "" {
		c.ClientStatus = models.ClientAlive
	}
}

func validate(c *models.Contact) error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.FileNumber, validation.Required, validation.RuneLength(1, 20)),
		validation.Field(&c.FirstName, validation.Required, validation.RuneLength(2, 50)),
		validation.Field(&c.MiddleName, validation.RuneLength(0, 50)),
		validation.Field(&c.LastName, validation.Required, validation.RuneLength(2, 50)),
		validation.Field(&c.Email, validation.Required, is.EmailFormat, validation.RuneLength(0, 254)),
		validation.Field(&c.PhoneNumber, validation.Required,
			validation.Match(phonePattern).Error("must be 4 to 15 digits with an optional leading +")),
		validation.Field(&c.Address, validation.Required),
		validation.Field(&c.Company, validation.RuneLength(0, 100)),
		validation.Field(&c.FileStatus, validation.Required, validation.In(models.FileOpen, models.FileClosed)),
		validation.Field(&c.ClientStatus, validation.Required, validation.In(models.ClientAlive, models.ClientDeceased)),
	)
	if err != nil {
		return apperr.AsValidation(err)
	}

	if c.ID != 0 {
		for _, id := range c.LinkedClients {
			if id == c.ID {
				return apperr.NewValidation("linked_clients", "cannot link to self")
			}
		}
	}
	return nil
}
