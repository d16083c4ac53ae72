package rdsearch

// DigestType classifies a digest string by length: 32 hex characters is an
// md5, 40 a sha1, 8 a crc32. The returned name doubles as the record field
// holding that digest.
func DigestType(digest string) (string, error) {
	switch len(digest) {
	case 32:
		return "md5", nil
	case 40:
		return "sha1", nil
	case 8:
		return "crc32", nil
	}
	return "", &InvalidDigestError{Digest: digest}
}
