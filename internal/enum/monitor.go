package enum

type MonitorMode string

const (
	MonitorIdle    MonitorMode = "idle"
	MonitorPolling MonitorMode = "polling"
)

func (m MonitorMode) String() string {
	return string(m)
}

type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
	StorageR2    StorageBackend = "r2"
)

func (s StorageBackend) String() string {
	return string(s)
}
