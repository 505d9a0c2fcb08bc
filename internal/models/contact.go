// Package models defines the domain types for dossier.
package models

import (
	"fmt"
	"strings"
	"time"
)

// FileStatus tracks whether the legal file is still being worked.
type FileStatus string

const (
	FileOpen   FileStatus = "OPEN"
	FileClosed FileStatus = "CLOSED"
)

// ClientStatus records whether the client is alive.
type ClientStatus string

const (
	ClientAlive    ClientStatus = "ALIVE"
	ClientDeceased ClientStatus = "DECEASED"
)

// Contact is a single directory record. It can act as a file (it has linked
// clients), as a client (other contacts link to it), or both.
type Contact struct {
	ID            int64        `json:"id"`
	FileNumber    string       `json:"file_number"`
	FirstName     string       `json:"first_name"`
	MiddleName    *string      `json:"middle_name"`
	LastName      string       `json:"last_name"`
	Email         string       `json:"email"`
	PhoneNumber   string       `json:"phone_number"`
	Address       string       `json:"address"`
	Company       *string      `json:"company"`
	FileStatus    FileStatus   `json:"file_status"`
	ClientStatus  ClientStatus `json:"client_status"`
	LinkedClients []int64      `json:"linked_clients"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// DisplayName renders the contact as "First Last (FILE)".
func (c *Contact) DisplayName() string {
	return fmt.Sprintf("%s %s (%s)", c.FirstName, c.LastName, c.FileNumber)
}

// Summary returns the compact form used when inlining linked clients.
func (c *Contact) Summary() ContactSummary {
	return ContactSummary{
		ID:         c.ID,
		Name:       strings.TrimSpace(c.FirstName + " " + c.LastName),
		FileNumber: c.FileNumber,
	}
}

// ContactSummary is the bounded nested view of a linked contact.
type ContactSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	FileNumber string `json:"file_number"`
}

// ContactInput carries every writable field for create and full update.
type ContactInput struct {
	FileNumber    string       `json:"file_number"`
	FirstName     string       `json:"first_name"`
	MiddleName    *string      `json:"middle_name"`
	LastName      string       `json:"last_name"`
	Email         string       `json:"email"`
	PhoneNumber   string       `json:"phone_number"`
	Address       string       `json:"address"`
	Company       *string      `json:"company"`
	FileStatus    FileStatus   `json:"file_status"`
	ClientStatus  ClientStatus `json:"client_status"`
	LinkedClients []int64      `json:"linked_clients"`
}

// ContactPatch is a partial update. Nil fields are left unchanged.
type ContactPatch struct {
	FileNumber    *string       `json:"file_number"`
	FirstName     *string       `json:"first_name"`
	MiddleName    *string       `json:"middle_name"`
	LastName      *string       `json:"last_name"`
	Email         *string       `json:"email"`
	PhoneNumber   *string       `json:"phone_number"`
	Address       *string       `json:"address"`
	Company       *string       `json:"company"`
	FileStatus    *FileStatus   `json:"file_status"`
	ClientStatus  *ClientStatus `json:"client_status"`
	LinkedClients *[]int64      `json:"linked_clients"`
}

// Apply copies the set fields of p onto c.
func (p ContactPatch) Apply(c *Contact) {
	if p.FileNumber != nil {
		c.FileNumber = *p.FileNumber
	}
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.MiddleName != nil {
		c.MiddleName = p.MiddleName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.PhoneNumber != nil {
		c.PhoneNumber = *p.PhoneNumber
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
	if p.Company != nil {
		c.Company = p.Company
	}
	if p.FileStatus != nil {
		c.FileStatus = *p.FileStatus
	}
	if p.ClientStatus != nil {
		c.ClientStatus = *p.ClientStatus
	}
	if p.LinkedClients != nil {
		c.LinkedClients = append([]int64(nil), (*p.LinkedClients)...)
	}
}

// ApplyTo overwrites every writable field of c with in. Identity and
// timestamps are left alone.
func (in ContactInput) ApplyTo(c *Contact) {
	c.FileNumber = in.FileNumber
	c.FirstName = in.FirstName
	c.MiddleName = in.MiddleName
	c.LastName = in.LastName
	c.Email = in.Email
	c.PhoneNumber = in.PhoneNumber
	c.Address = in.Address
	c.Company = in.Company
	c.FileStatus = in.FileStatus
	c.ClientStatus = in.ClientStatus
	c.LinkedClients = append([]int64(nil), in.LinkedClients...)
}
