package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ravskel/conveyor/internal/domain"
)

// Fingerprint вычисляет отпечаток PipelineSpec: sha256 его канонического
// JSON-представления (encoding/json сериализует map-ключи отсортированно,
// поэтому представление детерминировано).
//
// Отпечаток сохраняется вместе с run: resume против изменившегося графа
// обнаруживается сравнением отпечатков.
func Fingerprint(spec *domain.PipelineSpec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("marshal spec for fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
