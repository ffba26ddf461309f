package auctiondb

import "github.com/pkg/errors"

type HeightCheckpoint struct {
	Height uint64
	Hash   string
}

// GetHeightCheckpoints returns the stored checkpoints, highest first.
func GetHeightCheckpoints(tx Transactor) ([]*HeightCheckpoint, error) {
	rows, err := tx.Query("SELECT height, hash FROM height_checkpoints ORDER BY height DESC")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()
	var checks []*HeightCheckpoint
	for rows.Next() {
		checkpoint := new(HeightCheckpoint)
		if err := rows.Scan(&checkpoint.Height, &checkpoint.Hash); err != nil {
			return nil, errors.WithStack(err)
		}
		checks = append(checks, checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return checks, nil
}

func UpdateHeightCheckpoints(tx Transactor, checkpoints []*HeightCheckpoint) error {
	_, err := tx.Exec("DELETE FROM height_checkpoints")
	if err != nil {
		return errors.WithStack(err)
	}

	for _, check := range checkpoints {
		_, err := tx.Exec(
			"INSERT INTO height_checkpoints(height, hash) VALUES (?, ?)",
			check.Height,
			check.Hash,
		)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// GetTipHeight returns the highest checkpointed height, or zero when no
// checkpoints have been stored.
func GetTipHeight(tx Transactor) (uint64, error) {
	var height uint64
	err := tx.QueryRow("SELECT COALESCE(MAX(height), 0) FROM height_checkpoints").Scan(&height)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return height, nil
}
