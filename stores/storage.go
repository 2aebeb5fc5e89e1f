package stores

import (
	"github.com/sirupsen/logrus"

	"liveroom/core"
	"liveroom/stores/filesystem"
	"liveroom/stores/memory"
	"liveroom/stores/sqlite"
)

type Config struct {
	Type           string
	DataSourceName string
	BasePath       string
}

func GetStore(cfg Config) core.RoomRegistry {
	var store core.RoomRegistry

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.BasePath
		store = filesystem.NewRoomRegistry(cfg.BasePath)
	case "sqlite":
		if !sqlite.CGOEnabled {
			logrus.WithFields(storageField).Warn("sqlite needs cgo, falling back to in-memory storage")
			storageField["storageType"] = "in-memory"
			store = memory.NewRoomRegistry()
			break
		}
		storageField["dataSourceName"] = cfg.DataSourceName
		store = sqlite.NewRoomRegistry(cfg.DataSourceName)
	default:
		store = memory.NewRoomRegistry()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
