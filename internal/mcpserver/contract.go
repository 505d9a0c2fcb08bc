package mcpserver

// CardFormatContract describes the YAML contact-card format accepted by the
// inbox importer.
const CardFormatContract = `# Dossier Contact Card Format

Drop card files into the inbox directory to create or update contacts in bulk.

## Structure

` + "```" + `yaml
file_number: F100                  # REQUIRED - unique key; existing contacts are updated
first_name: Jane                   # REQUIRED - 2 to 50 characters
middle_name: Q                     # OPTIONAL
last_name: Smith                   # REQUIRED - 2 to 50 characters
email: jane@example.com            # REQUIRED - unique, stored lower-case
phone_number: "+1 555 0100"        # REQUIRED - unique, stored as + and digits
address: 1 Main Street             # REQUIRED
company: Acme                      # OPTIONAL
file_status: OPEN                  # OPTIONAL - OPEN (default) or CLOSED
client_status: ALIVE               # OPTIONAL - ALIVE (default) or DECEASED
linked_clients: [F200, F300]       # OPTIONAL - file numbers of linked clients
---
file_number: F200
first_name: Bob
last_name: Jones
email: bob@example.com
phone_number: "+1 555 0200"
address: 2 Main Street
` + "```" + `

## Rules

1. **One contact per YAML document.** Separate documents with ` + "`---`" + `.
2. **Files** end with ` + "`.yaml`" + ` or ` + "`.yml`" + `. Hidden files are ignored.
3. **Unknown keys are rejected** and reject the whole file.
4. **linked_clients** lists file numbers, not ids. They may name contacts defined
   later in the same file. The list replaces the contact's current links.
5. A contact cannot list itself.
6. A file is imported again only when its content changes.
`
