// Package rest exposes per-tenant MySQL tables as resourceful JSON endpoints
// without per-table code. The URL names the tenant and the pluralized
// resource; the table name is inferred by singularizing the collection
// segment.
//
//	Method and path                         | Behavior
//	----------------------------------------|------------------------------------------
//	GET  /{tenant}/{collection}             | full-table fetch: {collection: [rows]}
//	POST /{tenant}/{collection}             | insert, re-fetch: 201 {singular: row}
//	GET  /{tenant}/{collection}/{id}        | by-id fetch: {collection: row}
//	GET  /{tenant}/{collection}/{id}?include=rel | adds the related rows of rel,
//	                                        | matched through a foreign-key column
//	                                        | named after the primary table
//	PUT  /{tenant}/{collection}/{id}        | update by id: 200, empty body
//
// Request bodies nest the column/value pairs under the resource's singular
// name: `{"widget": {"name": "x"}}`. Null values omit the column from the
// statement. String values shaped like `2006-01-02T15:04:05.000Z` are stored
// as DATETIME text; the exact value `1970-01-01T00:00:00.000Z` is a sentinel
// meaning "stamp the current server time".
//
// Table and column names are interpolated into statement text after passing
// an identifier-character check and the tenant's information_schema
// allow-list; values are always bound positionally.
//
// Example usage:
//
//	pool := mysql.NewPoolManager(tenant.NewResolver("conf.d", logger), logger)
//	server := rest.NewServer(pool, logger, "")
//	log.Fatal(server.Start(":8080"))
package rest
