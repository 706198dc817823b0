// Package audit records administrative channel changes.
//
// Each change is appended as one JSON line with the acting subject, the slot touched, the
// request parameters (key material redacted), the outcome and a result code. Files rotate
// by size.
package audit
