package storage

type IService interface {
	// StoreFile saves data under name and returns where it can be found.
	StoreFile(name string, data []byte) (string, error)
}
