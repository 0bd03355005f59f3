package retriever

import "github.com/marulab/recall/pkg/models"

// Weights is the (semantic, keyword, time) triple applied by hybrid scoring.
// The three components do not need to sum to one; the time component is
// additionally scaled by the query's time_weight.
type Weights struct {
	Semantic float64 `json:"semantic" yaml:"semantic"`
	Keyword  float64 `json:"keyword" yaml:"keyword"`
	Time     float64 `json:"time" yaml:"time"`
}

// defaultProfiles maps each query type to its weight triple. News and
// strategy queries weight keyword and recency signals more heavily than
// technical ones, which lean on semantic similarity.
var defaultProfiles = map[models.QueryType]Weights{
	models.QueryGeneral:   {Semantic: 0.60, Keyword: 0.25, Time: 0.15},
	models.QueryTechnical: {Semantic: 0.70, Keyword: 0.20, Time: 0.10},
	models.QueryNews:      {Semantic: 0.45, Keyword: 0.30, Time: 0.25},
	models.QueryStrategy:  {Semantic: 0.50, Keyword: 0.30, Time: 0.20},
}

// profileFor resolves the weight triple for a query type, preferring
// configured overrides over the built-in profiles.
func (r *Retriever) profileFor(qt models.QueryType) Weights {
	if w, ok := r.cfg.Profiles[qt]; ok {
		return w
	}
	if w, ok := defaultProfiles[qt]; ok {
		return w
	}
	return defaultProfiles[models.QueryGeneral]
}
