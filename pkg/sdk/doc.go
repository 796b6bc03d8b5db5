// Package kbsearch embeds the tenant-scoped retrieval core in a Go program
// without running the HTTP server.
//
// Every chunk lives in one shared collection and carries the owning agent id.
// A search embeds the query, runs cosine KNN restricted to that agent, and
// returns either structured matches or the plain-text tool answer.
//
//	client, _ := kbsearch.New(ctx,
//	    kbsearch.WithRedis("localhost:6379", ""),
//	    kbsearch.WithEmbedder(myEmbedder),
//	)
//	defer client.Close()
//
//	res, err := client.Search(ctx, "how do cats sleep", "agent-1", 5)
//	text := client.VectorSearchTool(ctx, "how do cats sleep", "agent-1", 0)
package kbsearch
