// Package parser decodes YAML contact cards dropped into the inbox.
//
// A card file holds one or more YAML documents, each a single contact:
//
//	file_number: F100
//	first_name: Jane
//	last_name: Smith
//	email: jane@example.com
//	phone_number: "+1 555 0100"
//	address: 1 Main Street
//	linked_clients: [F200, F300]
//	---
//	file_number: F200
//	...
//
// linked_clients holds file numbers, not ids, so a file can link contacts
// that it creates itself.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/dossier/internal/models"
)

// Card is one contact as written in a card file.
type Card struct {
	FileNumber    string   `yaml:"file_number"`
	FirstName     string   `yaml:"first_name"`
	MiddleName    *string  `yaml:"middle_name"`
	LastName      string   `yaml:"last_name"`
	Email         string   `yaml:"email"`
	PhoneNumber   string   `yaml:"phone_number"`
	Address       string   `yaml:"address"`
	Company       *string  `yaml:"company"`
	FileStatus    string   `yaml:"file_status"`
	ClientStatus  string   `yaml:"client_status"`
	LinkedClients []string `yaml:"linked_clients"`
}

// Input converts the card into a service input. links are the resolved ids
// of LinkedClients.
func (c Card) Input(links []int64) models.ContactInput {
	return models.ContactInput{
		FileNumber:    c.FileNumber,
		FirstName:     c.FirstName,
		MiddleName:    c.MiddleName,
		LastName:      c.LastName,
		Email:         c.Email,
		PhoneNumber:   c.PhoneNumber,
		Address:       c.Address,
		Company:       c.Company,
		FileStatus:    models.FileStatus(strings.ToUpper(strings.TrimSpace(c.FileStatus))),
		ClientStatus:  models.ClientStatus(strings.ToUpper(strings.TrimSpace(c.ClientStatus))),
		LinkedClients: links,
	}
}

// Parse decodes every card in data. Empty documents are skipped. Unknown
// keys, a missing file_number, and a file_number repeated within the same
// file are errors.
func Parse(data []byte) ([]Card, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cards []Card
	seen := make(map[string]int)
	for doc := 1; ; doc++ {
		var c *Card
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parser: document %d: %w", doc, err)
		}
		if c == nil {
			continue
		}
		c.FileNumber = strings.TrimSpace(c.FileNumber)
		if c.FileNumber == "" {
			return nil, fmt.Errorf("parser: document %d: file_number is required", doc)
		}
		if prev, ok := seen[c.FileNumber]; ok {
			return nil, fmt.Errorf("parser: document %d: file_number %s already used in document %d", doc, c.FileNumber, prev)
		}
		seen[c.FileNumber] = doc
		for i, ref := range c.LinkedClients {
			c.LinkedClients[i] = strings.TrimSpace(ref)
		}
		cards = append(cards, *c)
	}
	return cards, nil
}
