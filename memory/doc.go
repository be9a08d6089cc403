// Package memory provides searchable document stores used for retrieval
// tools.
//
// Store is the backend contract: Upsert indexes documents, Query returns the
// topK matches for a text query, optionally restricted by a metadata Filter.
// Implementations:
//
//   - InMemoryStore: keyword overlap scoring; no embeddings, for tests and demos
//   - ChromemStore: in-process vector search via github.com/philippgille/chromem-go
//   - PineconeStore: managed vector index via github.com/pinecone-io/go-pinecone
//
// Vector backends embed text with an Embedder; OpenAIEmbedder uses the
// OpenAI embeddings API.
package memory
