package config

const (
	defaultAPIListen       = ":8080"
	defaultClientAPITarget = "http://localhost:8080"

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "qagent"

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultGenerationProvider = "ollama"
	defaultGenerationModel    = "llama3.2"

	defaultTopK          = 3
	defaultIngestWorkers = 2

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "qagent.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Generation: GenerationConfig{
			Provider: defaultGenerationProvider,
			Target:   defaultOllamaTarget,
			Model:    defaultGenerationModel,
		},
		Retrieval: RetrievalConfig{
			TopK: defaultTopK,
		},
		Ingest: IngestConfig{
			Workers: defaultIngestWorkers,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
