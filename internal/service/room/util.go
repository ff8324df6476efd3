package room

import (
	"github.com/google/uuid"
)

const maxIDLength = 64

func GenID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("Failed to generate UUID: " + err.Error())
	}

	return id.String()
}

// ShortID 取 UUIDv7 的随机尾部作为房间 ID
func ShortID() string {
	id := GenID()
	return id[len(id)-8:]
}

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLength
}
