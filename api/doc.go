/*
Package api defines the wire types of the safesync HTTP API.

The server (package httpserver) exposes:

	POST /api/pools                 minimal pool summary of a posted database document
	GET  /api/safes/{name}          pull a database through the storage provider
	PUT  /api/safes/{name}          push a database document
	POST /api/safes/{name}/run      push a configured safe from its local file
	GET  /api/provider              storage provider status
	POST /api/provider/signout      sign the storage provider out

Database documents are the JSON files produced by package dbfile. Pull and push
responses carry the content ID of the synced blob in ContentIDHeader; pulls
served from the offline cache set FromCacheHeader.

Package clients implements SafesyncProvider over HTTP.
*/
package api
