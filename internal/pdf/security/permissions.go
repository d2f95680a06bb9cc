package security

import (
	"strings"
)

// permission bits of the /P entry in the encryption dictionary
const (
	bitPrint            = 1 << 2
	bitModify           = 1 << 3
	bitCopy             = 1 << 4
	bitAnnotate         = 1 << 5
	bitFillForms        = 1 << 8
	bitExtract          = 1 << 9
	bitAssemble         = 1 << 10
	bitPrintHighQuality = 1 << 11
)

// Permissions are the user access permissions of an encrypted document
type Permissions struct {
	Print            bool
	Modify           bool
	Copy             bool
	Annotate         bool // add or modify annotations, fill in form fields
	FillForms        bool
	Extract          bool
	Assemble         bool // insert, rotate or delete pages, create bookmarks
	PrintHighQuality bool
}

// NewPermissions decodes the /P value of an encryption dictionary
func NewPermissions(perms int32) Permissions {
	return Permissions{
		Print:            perms&bitPrint != 0,
		Modify:           perms&bitModify != 0,
		Copy:             perms&bitCopy != 0,
		Annotate:         perms&bitAnnotate != 0,
		FillForms:        perms&bitFillForms != 0,
		Extract:          perms&bitExtract != 0,
		Assemble:         perms&bitAssemble != 0,
		PrintHighQuality: perms&bitPrintHighQuality != 0,
	}
}

// NewFullPermissions returns the permissions of an unencrypted document
func NewFullPermissions() Permissions {
	return NewPermissions(-1)
}

// Allows reports whether operation is granted. Unknown operations are denied.
func (p Permissions) Allows(operation string) bool {
	switch strings.ToLower(operation) {
	case "print":
		return p.Print
	case "modify":
		return p.Modify
	case "copy":
		return p.Copy
	case "annotate":
		return p.Annotate
	case "fill_forms", "fillforms":
		return p.FillForms
	case "extract":
		return p.Extract
	case "assemble":
		return p.Assemble
	case "print_high_quality", "printhighquality":
		return p.PrintHighQuality
	default:
		return false
	}
}

// Denied lists the operations a composition relies on that the document
// does not grant: assembling pages, and carrying annotations and forms
func (p Permissions) Denied() []string {
	var denied []string
	if !p.Assemble {
		denied = append(denied, "assemble")
	}
	if !p.Annotate {
		denied = append(denied, "annotate")
	}
	if !p.FillForms {
		denied = append(denied, "fill_forms")
	}
	return denied
}
