package config

// Defaults for a newly created knowledge base.
const (
	DefaultEmbeddingModel     = "shibing624/text2vec-base-chinese"
	DefaultEmbeddingDimension = 768
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = 60
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tcmkb/data/db/tcmkb.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "/usr/local/var/tcmkb/data/documents"
	}
	if cfg.Storage.MaxOpenConns == 0 {
		cfg.Storage.MaxOpenConns = 20
	}
	if cfg.Storage.MaxIdleConns == 0 {
		cfg.Storage.MaxIdleConns = 5
	}
	if cfg.Embedding.MaxInputChars == 0 {
		cfg.Embedding.MaxInputChars = 2000
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if len(cfg.Embedding.Models) == 0 {
		cfg.Embedding.Models = []ModelConfig{{
			Name:       DefaultEmbeddingModel,
			Type:       EmbedderONNX,
			Dimensions: DefaultEmbeddingDimension,
			ModelPath:  "/usr/local/var/tcmkb/data/models/text2vec-base-chinese/model.onnx",
			VocabPath:  "/usr/local/var/tcmkb/data/models/text2vec-base-chinese/vocab.txt",
			MaxTokens:  256,
			Pooling:    "mean",
		}}
	}
	for i := range cfg.Embedding.Models {
		m := &cfg.Embedding.Models[i]
		if m.Type == EmbedderONNX && m.MaxTokens == 0 {
			m.MaxTokens = 256
		}
	}
	if cfg.KnowledgeBase.EmbeddingModel == "" {
		cfg.KnowledgeBase.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.KnowledgeBase.EmbeddingDimension == 0 {
		cfg.KnowledgeBase.EmbeddingDimension = DefaultEmbeddingDimension
		if m, ok := cfg.Embedding.Model(cfg.KnowledgeBase.EmbeddingModel); ok {
			cfg.KnowledgeBase.EmbeddingDimension = m.Dimensions
		}
	}
	if cfg.KnowledgeBase.SimilarityThreshold == 0 {
		cfg.KnowledgeBase.SimilarityThreshold = 0.5
	}
	if cfg.KnowledgeBase.SearchType == "" {
		cfg.KnowledgeBase.SearchType = "blend"
	}
	if cfg.KnowledgeBase.TopK == 0 {
		cfg.KnowledgeBase.TopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.SegmentMaxLength == 0 {
		cfg.Search.SegmentMaxLength = 1000
	}
	if cfg.Search.PreviewLength == 0 {
		cfg.Search.PreviewLength = 200
	}
	if cfg.Processing.Workers == 0 {
		cfg.Processing.Workers = 2
	}
	if cfg.Processing.QueueSize == 0 {
		cfg.Processing.QueueSize = 64
	}
	if cfg.Processing.TimeoutSeconds == 0 {
		cfg.Processing.TimeoutSeconds = 600
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".doc", ".docx", ".txt", ".md", ".xlsx", ".xls"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
