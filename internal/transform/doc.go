// Package transform holds the batch transformations applied to register
// workbooks.
//
// Three pipelines are built from the pieces in this package:
//
//   - Chunk split: FixCodes -> Dedupe -> Chunk -> PopulateChunks. Repeated
//     records are blanked in place, never removed, so every input row keeps
//     its slot in the output files.
//   - Passport macro: RewritePassports overwrites the code and date cells of
//     rows whose code starts with an allowed character.
//   - PINFL replacement: BuildMapping over the results workbook, then
//     ReplacePinfl over the source register, recording every substitution.
//
// Every function takes immutable sheet.Tables and returns new ones. Column
// positions come from the layouts in package schema.
package transform
