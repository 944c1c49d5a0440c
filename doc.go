// Package lexvec provides an embedded vector similarity search engine
// with a retrieval-augmented-generation front end.
//
// Lexvec indexes dense document embeddings in an HNSW graph, keeps an
// authoritative record store and a filterable metadata index consistent
// with it, and assembles ranked, budget-bounded contexts for a downstream
// generator.
//
// # Quick Start
//
//	eng, _ := lexvec.New(768)
//	defer eng.Close()
//
//	_ = eng.AddRecord(ctx, lexvec.Record{
//	    ID:        "case-123#chunk-4",
//	    Embedding: embedding,
//	    Snippet:   "The court held that ...",
//	    Metadata: metadata.Document{
//	        "case_type": metadata.String("precedent"),
//	        "court":     metadata.String("9th Circuit"),
//	    },
//	})
//
//	results, _ := eng.Search(ctx, queryEmbedding, 10)
//	rc, _ := eng.RetrieveContext(ctx, rag.Query{
//	    Text:      "controlling precedent for fair use",
//	    Embedding: queryEmbedding,
//	    Budget:    4000,
//	})
//
// # Consistency Model
//
// Mutations are serialized behind a single writer; searches never block
// and always observe one complete state generation. A record becomes
// searchable only after its graph insert succeeds; deletion tombstones
// the graph node immediately and compaction reclaims it later.
//
// # Durability
//
//	eng, _ := lexvec.New(768,
//	    lexvec.WithWAL("./data/lexvec.wal"),
//	    lexvec.WithSnapshotPath("./data/lexvec.snap"))
//
//	_ = eng.RecoverFromWAL(ctx) // after a crash
//	_ = eng.Checkpoint()        // snapshot + truncate the log
//
// Snapshots can also be stored remotely through a BlobStore (local
// directory, S3, MinIO).
package lexvec
