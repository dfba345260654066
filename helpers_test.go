package ewf

import (
	"crypto/md5"
	"crypto/sha1"
)

func md5Sum(data []byte) [16]byte {
	return md5.Sum(data)
}

func sha1Sum(data []byte) [20]byte {
	return sha1.Sum(data)
}
