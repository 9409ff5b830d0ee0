package status

import "errors"

// Code is the result band returned to the client for every statement.
// A Code is itself an error so call sites can wrap it with fmt.Errorf
// ("insert into %s: %w", ...) and callers can test it with errors.Is.
type Code int

const (
	Success Code = iota
	InvalidArgument
	SchemaTableExist
	SchemaTableNameIllegal
	SchemaIndexExist
	SchemaFieldMissing
	SchemaFieldNameIllegal
	SchemaFieldTypeMismatch
	SchemaFieldNotExist
	RecordEOF
	RecordInvalidKey
	IOErr
	SQLSyntax
	GenericError
)

var names = map[Code]string{
	Success:                 "SUCCESS",
	InvalidArgument:         "INVALID_ARGUMENT",
	SchemaTableExist:        "SCHEMA_TABLE_EXIST",
	SchemaTableNameIllegal:  "SCHEMA_TABLE_NAME_ILLEGAL",
	SchemaIndexExist:        "SCHEMA_INDEX_EXIST",
	SchemaFieldMissing:      "SCHEMA_FIELD_MISSING",
	SchemaFieldNameIllegal:  "SCHEMA_FIELD_NAME_ILLEGAL",
	SchemaFieldTypeMismatch: "SCHEMA_FIELD_TYPE_MISMATCH",
	SchemaFieldNotExist:     "SCHEMA_FIELD_NOT_EXIST",
	RecordEOF:               "RECORD_EOF",
	RecordInvalidKey:        "RECORD_INVALID_KEY",
	IOErr:                   "IOERR",
	SQLSyntax:               "SQL_SYNTAX",
	GenericError:            "GENERIC_ERROR",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "GENERIC_ERROR"
}

func (c Code) Error() string { return c.String() }

// Of extracts the code band from an error chain. A nil error is Success;
// an error that carries no Code collapses to GenericError.
func Of(err error) Code {
	if err == nil {
		return Success
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return GenericError
}
