package retrieval

// Strategy names.
const (
	StrategySingleVector = "single_vector"
	StrategyMultiVector  = "multi_vector"
	StrategyTextOnly     = "text_only"
	StrategyHybrid       = "hybrid"
	StrategyQdrantDense  = "qdrant_dense"
	StrategyQdrantMulti  = "qdrant_multi"
	StrategyQdrantHybrid = "qdrant_hybrid"
	StrategyLocalKeyword = "local_keyword"
	StrategyFusion       = "fusion"
)

// Engines backing the strategies.
const (
	EngineVespa  = "vespa"
	EngineQdrant = "qdrant"
	EngineLocal  = "local"
)

// StrategyInfo describes an available strategy.
type StrategyInfo struct {
	Name        string `json:"name"`
	Engine      string `json:"engine"`
	Embeddings  bool   `json:"embeddings"`
	Description string `json:"description"`
}

var strategies = []StrategyInfo{
	{StrategySingleVector, EngineVespa, true, "Vespa nearest neighbour over the pooled query embedding"},
	{StrategyMultiVector, EngineVespa, true, "Vespa MaxSim over query token embeddings"},
	{StrategyTextOnly, EngineVespa, false, "Vespa bm25 rank profile over the query text"},
	{StrategyHybrid, EngineVespa, true, "Vespa hybrid rank profile, embedding plus query text"},
	{StrategyQdrantDense, EngineQdrant, true, "Qdrant search on the dense named vector"},
	{StrategyQdrantMulti, EngineQdrant, true, "Qdrant MaxSim search on the token multivector"},
	{StrategyQdrantHybrid, EngineQdrant, true, "Qdrant dense and multivector prefetch fused with RRF"},
	{StrategyLocalKeyword, EngineLocal, false, "In-process keyword index over the passages file"},
	{StrategyFusion, EngineLocal, false, "Client-side fusion of a semantic and a keyword strategy"},
}

// Strategies lists every known strategy.
func Strategies() []StrategyInfo {
	out := make([]StrategyInfo, len(strategies))
	copy(out, strategies)
	return out
}

// Lookup returns the description of a strategy.
func Lookup(name string) (StrategyInfo, bool) {
	for _, s := range strategies {
		if s.Name == name {
			return s, true
		}
	}
	return StrategyInfo{}, false
}
