package transform

import (
	"fmt"

	"github.com/JonMunkholm/ecpack/internal/schema"
	"github.com/JonMunkholm/ecpack/internal/sheet"
)

// Chunk splits rows into consecutive groups of size rows; the last group
// may be shorter. Chunks share backing storage with rows.
func Chunk(rows []sheet.Row, size int) ([][]sheet.Row, error) {
	if err := schema.ValidateChunkSize(size); err != nil {
		return nil, err
	}
	chunks := make([][]sheet.Row, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end:end])
	}
	return chunks, nil
}

// Naming decides artifact file names. Stride is the row count used to
// compute the numeric suffix; zero means the chunk size itself.
type Naming struct {
	Prefix string
	Stride int
}

// Name returns the artifact name for chunk idx.
func (n Naming) Name(idx, chunkSize int) string {
	stride := n.Stride
	if stride <= 0 {
		stride = chunkSize
	}
	return fmt.Sprintf("%s%d.xlsx", n.Prefix, idx*stride)
}

// Artifact is one populated template.
type Artifact struct {
	Name  string
	Index int
	Rows  int
	Table *sheet.Table
}

// PopulateChunks writes each chunk into its own copy of the template.
func PopulateChunks(tp *sheet.Template, chunks [][]sheet.Row, chunkSize int, naming Naming) ([]Artifact, error) {
	out := make([]Artifact, 0, len(chunks))
	for i, c := range chunks {
		tbl, err := tp.Fill(c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, Artifact{
			Name:  naming.Name(i, chunkSize),
			Index: i,
			Rows:  len(c),
			Table: tbl,
		})
	}
	return out, nil
}
