package market

const (
	fnvOffset32 = uint32(2166136261)
	fnvPrime32  = uint32(16777619)
)

// fnvHash вычисляет FNV-1a hash строки без аллокаций
func fnvHash(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// ShardIndex возвращает номер шарда для инструмента
// Детерминированный: один инструмент всегда попадает в один шард
func ShardIndex(instrument string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	return int(fnvHash(instrument) % uint32(numShards))
}
