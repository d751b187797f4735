package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

func (s *store) insertMemory(m Memory) error {
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO memories (id, layer, content, metadata_json, importance_score, access_count, last_accessed, created_at, tags_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Layer), m.Content, string(metaJSON), m.ImportanceScore, m.AccessCount,
		m.LastAccessed, m.CreatedAt, string(tagsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *store) updateMemory(m Memory) error {
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE memories SET layer=?, content=?, metadata_json=?, importance_score=?,
		 access_count=?, last_accessed=?, tags_json=? WHERE id=?`,
		string(m.Layer), m.Content, string(metaJSON), m.ImportanceScore, m.AccessCount,
		m.LastAccessed, string(tagsJSON), m.ID,
	)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return nil
}

func (s *store) deleteMemory(id string) error {
	_, err := s.db.Exec(`DELETE FROM memories WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

func (s *store) getMemory(id string) (Memory, error) {
	row := s.db.QueryRow(
		`SELECT id, layer, content, metadata_json, importance_score, access_count, last_accessed, created_at, tags_json
		 FROM memories WHERE id=?`, id,
	)
	return scanMemory(row)
}

func (s *store) listMemories() ([]Memory, error) {
	rows, err := s.db.Query(
		`SELECT id, layer, content, metadata_json, importance_score, access_count, last_accessed, created_at, tags_json
		 FROM memories`,
	)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *store) listMemoriesByLayer(layer string) ([]Memory, error) {
	rows, err := s.db.Query(
		`SELECT id, layer, content, metadata_json, importance_score, access_count, last_accessed, created_at, tags_json
		 FROM memories WHERE layer=?`, layer,
	)
	if err != nil {
		return nil, fmt.Errorf("list memories by layer: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (Memory, error) {
	var m Memory
	var layer, metaJSON, tagsJSON string
	if err := row.Scan(&m.ID, &layer, &m.Content, &metaJSON, &m.ImportanceScore,
		&m.AccessCount, &m.LastAccessed, &m.CreatedAt, &tagsJSON); err != nil {
		if err == sql.ErrNoRows {
			return Memory{}, fmt.Errorf("memory not found: %w", err)
		}
		return Memory{}, fmt.Errorf("scan memory: %w", err)
	}
	m.Layer = Layer(layer)
	if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
		return Memory{}, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return Memory{}, fmt.Errorf("decode tags: %w", err)
	}
	return m, nil
}

func (s *store) insertAssociation(a Association) error {
	_, err := s.db.Exec(
		`INSERT INTO associations (id, memory_a, memory_b, kind, strength, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.MemoryA, a.MemoryB, string(a.Type), a.Strength, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert association: %w", err)
	}
	return nil
}

func (s *store) associationsFor(memoryID string) ([]Association, error) {
	rows, err := s.db.Query(
		`SELECT id, memory_a, memory_b, kind, strength, created_at FROM associations WHERE memory_a=? OR memory_b=?`,
		memoryID, memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}
	defer rows.Close()

	var out []Association
	for rows.Next() {
		var a Association
		var kind string
		if err := rows.Scan(&a.ID, &a.MemoryA, &a.MemoryB, &kind, &a.Strength, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan association: %w", err)
		}
		a.Type = AssociationType(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *store) insertInsight(insight Insight, memoryID string) error {
	supportingJSON, err := json.Marshal(insight.SupportingMemories)
	if err != nil {
		return fmt.Errorf("encode supporting memories: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO insights (id, insight_type, content, confidence, supporting_memories_json, agent_id, created_at, memory_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		insight.ID, string(insight.Type), insight.Content, insight.Confidence,
		string(supportingJSON), insight.AgentID, insight.CreatedAt, memoryID,
	)
	if err != nil {
		return fmt.Errorf("insert insight: %w", err)
	}
	return nil
}

func (s *store) saveKeywordWeights(weights map[string]float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin keyword weight save: %w", err)
	}
	for keyword, weight := range weights {
		if _, err := tx.Exec(
			`INSERT INTO keyword_weights (keyword, weight) VALUES (?, ?)
			 ON CONFLICT(keyword) DO UPDATE SET weight=excluded.weight`,
			keyword, weight,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert keyword weight: %w", err)
		}
	}
	return tx.Commit()
}

func (s *store) loadKeywordWeights() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT keyword, weight FROM keyword_weights`)
	if err != nil {
		return nil, fmt.Errorf("load keyword weights: %w", err)
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var keyword string
		var weight float64
		if err := rows.Scan(&keyword, &weight); err != nil {
			return nil, fmt.Errorf("scan keyword weight: %w", err)
		}
		weights[keyword] = weight
	}
	return weights, rows.Err()
}
