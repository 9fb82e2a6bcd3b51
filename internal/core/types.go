package core

// ChunkFile describes one file inside a chunk archive.
type ChunkFile struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

// ChunkResult is the outcome of a chunk-split job.
type ChunkResult struct {
	JobID      string      `json:"job_id"`
	Mode       Mode        `json:"mode"`
	Archive    NamedFile   `json:"-"`
	Files      []ChunkFile `json:"files"`
	Rows       int         `json:"rows"`
	Duplicates int         `json:"duplicates"`
	CodesFixed int         `json:"codes_fixed"`

	// Chunks holds the individual workbooks in chunk order.
	Chunks []NamedFile `json:"-"`
}

// MacroResult is the outcome of a passport macro job.
type MacroResult struct {
	JobID     string    `json:"job_id"`
	File      NamedFile `json:"-"`
	Rows      int       `json:"rows"`
	Rewritten int       `json:"rewritten"`
}

// JoinOutput is the outcome of a PINFL replacement job.
type JoinOutput struct {
	JobID        string    `json:"job_id"`
	File         NamedFile `json:"-"`
	Rows         int       `json:"rows"`
	Replacements int       `json:"replacements"`
	Defaulted    int       `json:"defaulted"`
	Misses       int       `json:"misses"`
	Ignored      int       `json:"ignored"`
	Log          string    `json:"log"`
}
