package stores

import (
	"os"

	"github.com/sirupsen/logrus"

	"notify-collab/core"
	"notify-collab/stores/aws"
	"notify-collab/stores/filesystem"
	"notify-collab/stores/memory"
	"notify-collab/stores/postgres"
	"notify-collab/stores/sqlite"
)

// Store is the union of the persistence interfaces the realtime core
// consumes: the note store and the user directory.
type Store interface {
	core.NoteStore
	core.UserDirectory
}

func GetStore() Store {
	storageType := os.Getenv("STORAGE_TYPE")
	var store Store

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "notify.db"
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	case "postgres":
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			logrus.Fatal("DATABASE_URL environment variable must be set for postgres storage type")
		}
		store = postgres.NewStore(databaseURL)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = aws.NewStore(bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
