package recordingstore

import (
	"embed"

	"github.com/shongo-go/connector/src/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Schema 录制元数据库，文件夹与录制记录丢失后无法从设备恢复
var Schema = &migration.Schema{
	Name:     "recordings",
	FS:       migrations,
	Dir:      "migrations",
	Critical: true,
}
