package translator

import (
	"context"
	"time"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/papers"
)

// TranslatedPaper is the English rendition of a harvested record.
type TranslatedPaper struct {
	PaperID      string    `json:"paper_id"`
	Title        string    `json:"title"`
	Abstract     string    `json:"abstract"`
	Model        string    `json:"model,omitempty"`
	TranslatedAt time.Time `json:"translated_at"`
}

// Translator turns a source paper into its English rendition. Implementations
// must honor ctx cancellation; one call's failure carries no state into the
// next call.
type Translator interface {
	Translate(ctx context.Context, paper papers.Paper) (*TranslatedPaper, error)
}

// Func adapts a plain function to the Translator interface.
type Func func(ctx context.Context, paper papers.Paper) (*TranslatedPaper, error)

func (f Func) Translate(ctx context.Context, paper papers.Paper) (*TranslatedPaper, error) {
	return f(ctx, paper)
}
