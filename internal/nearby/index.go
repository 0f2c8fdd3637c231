package nearby

// CandidateIndex holds the epoch's testable school positions, loaded once
// per run and shared across every location in the batch.
type CandidateIndex struct {
	dataYear   int
	candidates []Candidate
}

// NewCandidateIndex builds an index over the given candidates.
func NewCandidateIndex(dataYear int, candidates []Candidate) *CandidateIndex {
	return &CandidateIndex{dataYear: dataYear, candidates: candidates}
}

// DataYear returns the epoch the index was loaded for.
func (ix *CandidateIndex) DataYear() int { return ix.dataYear }

// Len returns the number of candidates in the index.
func (ix *CandidateIndex) Len() int { return len(ix.candidates) }

// Without returns the candidates excluding those at the given location.
// A school never appears in its own catchment results.
func (ix *CandidateIndex) Without(locationID int64) []Candidate {
	out := make([]Candidate, 0, len(ix.candidates))
	for _, c := range ix.candidates {
		if c.LocationID == locationID {
			continue
		}
		out = append(out, c)
	}
	return out
}
