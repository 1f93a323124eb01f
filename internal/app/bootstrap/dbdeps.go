// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/maishoras/maishoras/internal/app/system/txn"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Txn runs multi-document writes in a transaction when the deployment
	// supports them.
	Txn *txn.Runner

	// Background holds workers started in Startup and stopped in Shutdown.
	// It is allocated in ConnectDB so the hooks, which receive DBDeps by
	// value, share it.
	Background *Background
}
