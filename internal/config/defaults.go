package config

// Narrative style values accepted by NarrativeConfig.Style.
const (
	StyleAuto       = "auto"
	StyleRepublican = "republican"
	StyleArchaic    = "archaic"
	StyleModern     = "modern"
	StyleEerie      = "eerie"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Retrieval.CorpusPath == "" {
		cfg.Retrieval.CorpusPath = "./rag_documents.txt"
	}
	if cfg.Retrieval.CorpusSource == "" {
		cfg.Retrieval.CorpusSource = "COC rulebook"
	}
	if cfg.Retrieval.IndexDir == "" {
		cfg.Retrieval.IndexDir = "./faiss_index"
	}
	if cfg.Retrieval.IndexName == "" {
		cfg.Retrieval.IndexName = "coc_rules"
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 500
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Memory.Dir == "" {
		cfg.Memory.Dir = "./memory_data"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "EMBEDDING_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-v4"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1024
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "LLM_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "deepseek-v3"
	}
	if cfg.LLM.ChatTemperature == 0 {
		cfg.LLM.ChatTemperature = 0.7
	}
	if cfg.LLM.ChatMaxTokens == 0 {
		cfg.LLM.ChatMaxTokens = 2048
	}
	if cfg.LLM.SummaryTemperature == 0 {
		cfg.LLM.SummaryTemperature = 0.7
	}
	if cfg.LLM.SummaryMaxTokens == 0 {
		cfg.LLM.SummaryMaxTokens = 1000
	}
	if cfg.LLM.StoryTemperature == 0 {
		cfg.LLM.StoryTemperature = 0.8
	}
	if cfg.LLM.StoryMaxTokens == 0 {
		cfg.LLM.StoryMaxTokens = 3000
	}
	if cfg.Narrative.Style == "" {
		cfg.Narrative.Style = StyleAuto
	}
}
