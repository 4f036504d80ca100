// Package e2e holds the end-to-end corpus fixture and full-pipeline tests.
package e2e

// CorpusDoc is one fixture document written to the corpus directory.
type CorpusDoc struct {
	Filename string
	Content  string
}

// QueryCase pairs a question with the fixture files expected among its
// retrieved sources.
type QueryCase struct {
	Description   string
	Question      string
	ExpectedFiles []string
}

// Corpus is the fixture corpus plus its query test cases.
type Corpus struct {
	Docs      []CorpusDoc
	TestCases []QueryCase
}

// BuildCorpus returns a small medical corpus with queries whose vocabulary
// overlaps exactly one document each, so bag-of-words embeddings rank the
// right source first.
func BuildCorpus() *Corpus {
	return &Corpus{
		Docs: []CorpusDoc{
			{
				Filename: "fever.txt",
				Content: "Fever is a common symptom of infection. A temperature above 38C in adults " +
					"usually indicates the body is fighting an infection. Rest and hydration support recovery. " +
					"Persistent fever beyond three days warrants medical evaluation.",
			},
			{
				Filename: "ibuprofen.md",
				Content: "Ibuprofen dosage for adults ranges from 200mg to 400mg per dose, taken every " +
					"four to six hours with food. The maximum daily ibuprofen dosage without supervision is 1200mg. " +
					"Ibuprofen should be taken with food to reduce stomach irritation.",
			},
			{
				Filename: "wound-care.txt",
				Content: "Basic wound care starts with washing hands and rinsing the wound under clean " +
					"running water. Apply gentle pressure with sterile gauze to stop bleeding, then cover the wound " +
					"with a sterile dressing. Change the dressing daily and watch for signs of infection.",
			},
			{
				Filename: "storage.md",
				Content: "Medication storage guidelines: keep tablets in a cool dry cabinet away from " +
					"direct sunlight. Never store medication in the bathroom where humidity is high. Check expiry " +
					"dates before use and dispose of expired medication at a pharmacy.",
			},
		},
		TestCases: []QueryCase{
			{
				Description:   "fever question retrieves the fever document",
				Question:      "What should I do about a persistent fever symptom?",
				ExpectedFiles: []string{"fever.txt"},
			},
			{
				Description:   "dosage question retrieves the ibuprofen document",
				Question:      "What is the maximum daily ibuprofen dosage?",
				ExpectedFiles: []string{"ibuprofen.md"},
			},
			{
				Description:   "wound question retrieves the wound care document",
				Question:      "How do I dress a bleeding wound with sterile gauze?",
				ExpectedFiles: []string{"wound-care.txt"},
			},
			{
				Description:   "storage question retrieves the storage document",
				Question:      "Where should I keep tablets, can they go in the bathroom cabinet?",
				ExpectedFiles: []string{"storage.md"},
			},
		},
	}
}
