package storage

// NewJournalWithBuffer exposes the writer buffer size to tests.
var NewJournalWithBuffer = newJournal
