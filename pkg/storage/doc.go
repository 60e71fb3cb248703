// Package storage writes crawl output.
//
// Each account gets "<output>/<account>_notes.csv", created with a UTF-8
// byte-order mark and a header row and appended to afterwards. Writers of
// the same file are serialised. ExportWorkbook gathers the CSVs into one
// multi-sheet xlsx file.
package storage
