package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cardboard/api/internal/order"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CountMembership reports how many membership rows tie the user to the board.
// Zero means the user has no access.
func (s *PostgresStore) CountMembership(ctx context.Context, boardID, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM board_members WHERE board_id=$1 AND user_id=$2
	`, boardID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count membership: %w", err)
	}
	return count, nil
}

// ---- boards ----

func (s *PostgresStore) InsertBoard(ctx context.Context, board Board) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert board: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO boards (title, color, board_type, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, board.Title, board.Color, board.Type, board.OwnerID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert board: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id) VALUES ($1, $2)
	`, id, board.OwnerID); err != nil {
		return 0, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert board: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID int64) (Board, error) {
	var board Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, color, board_type, owner_id, updated_at
		FROM boards WHERE id=$1
	`, boardID).Scan(&board.ID, &board.Title, &board.Color, &board.Type, &board.OwnerID, &board.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Board{}, ErrNotFound
	}
	if err != nil {
		return Board{}, fmt.Errorf("get board: %w", err)
	}
	return board, nil
}

func (s *PostgresStore) UpdateBoard(ctx context.Context, boardID int64, title, color string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE boards SET title=$2, color=$3, updated_at=NOW() WHERE id=$1
	`, boardID, title, color)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return requireRow(res)
}

// DeleteBoard removes the board; columns, cards, tags and memberships follow
// through foreign keys.
func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) AddMember(ctx context.Context, boardID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (board_id, user_id) DO NOTHING
	`, boardID, userID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, boardID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM board_members WHERE board_id=$1 AND user_id=$2
	`, boardID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBoardIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT board_id FROM board_members WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list board ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan board id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate board ids: %w", err)
	}
	return ids, nil
}

// ---- columns ----

func (s *PostgresStore) InsertColumn(ctx context.Context, column Column) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO columns (board_id, title, order_key)
		VALUES ($1, $2, $3)
		RETURNING id
	`, column.BoardID, column.Title, column.OrderKey).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert column: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetColumn(ctx context.Context, columnID int64) (Column, error) {
	var column Column
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, title, order_key FROM columns WHERE id=$1
	`, columnID).Scan(&column.ID, &column.BoardID, &column.Title, &column.OrderKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Column{}, ErrNotFound
	}
	if err != nil {
		return Column{}, fmt.Errorf("get column: %w", err)
	}
	return column, nil
}

func (s *PostgresStore) RenameColumn(ctx context.Context, columnID int64, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE columns SET title=$2 WHERE id=$1`, columnID, title)
	if err != nil {
		return fmt.Errorf("rename column: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) DeleteColumn(ctx context.Context, columnID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM columns WHERE id=$1`, columnID)
	if err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) BoardIDByColumn(ctx context.Context, columnID int64) (int64, error) {
	var boardID int64
	err := s.db.QueryRowContext(ctx, `SELECT board_id FROM columns WHERE id=$1`, columnID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("board id by column: %w", err)
	}
	return boardID, nil
}

// LastColumnKey returns the rightmost order key on the board, or nil when the
// board has no columns.
func (s *PostgresStore) LastColumnKey(ctx context.Context, boardID int64) (*float64, error) {
	var key sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(order_key) FROM columns WHERE board_id=$1
	`, boardID).Scan(&key)
	if err != nil {
		return nil, fmt.Errorf("last column key: %w", err)
	}
	if !key.Valid {
		return nil, nil
	}
	return &key.Float64, nil
}

// ColumnKeyWindow returns the moving column's key followed by up to size-1
// sibling keys in the direction of the move.
func (s *PostgresStore) ColumnKeyWindow(ctx context.Context, boardID, columnID int64, size int, down bool) ([]float64, error) {
	query := `
		SELECT order_key FROM columns
		WHERE board_id=$1 AND order_key >= (SELECT order_key FROM columns WHERE id=$2)
		ORDER BY order_key ASC LIMIT $3
	`
	if !down {
		query = `
			SELECT order_key FROM columns
			WHERE board_id=$1 AND order_key <= (SELECT order_key FROM columns WHERE id=$2)
			ORDER BY order_key DESC LIMIT $3
		`
	}
	return s.keyWindow(ctx, query, boardID, columnID, size)
}

func (s *PostgresStore) SetColumnKey(ctx context.Context, columnID int64, key float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE columns SET order_key=$2 WHERE id=$1`, columnID, key)
	if err != nil {
		return fmt.Errorf("set column key: %w", err)
	}
	return requireRow(res)
}

// RenumberColumns rewrites every column key on the board to evenly spaced
// values in one transaction. Relative order is preserved.
func (s *PostgresStore) RenumberColumns(ctx context.Context, boardID int64) error {
	return s.renumber(ctx, `
		SELECT id FROM columns WHERE board_id=$1 ORDER BY order_key ASC FOR UPDATE
	`, `UPDATE columns SET order_key=$2 WHERE id=$1`, boardID)
}

// ---- cards ----

func (s *PostgresStore) InsertCard(ctx context.Context, card Card) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cards (column_id, board_id, content, order_key, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, card.ColumnID, card.BoardID, card.Content, card.OrderKey, card.UpdatedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert card: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, cardID int64) (Card, error) {
	var card Card
	err := s.db.QueryRowContext(ctx, `
		SELECT id, column_id, board_id, content, order_key, has_tag, updated_by, updated_at
		FROM cards WHERE id=$1
	`, cardID).Scan(&card.ID, &card.ColumnID, &card.BoardID, &card.Content, &card.OrderKey,
		&card.HasTag, &card.UpdatedBy, &card.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	if err != nil {
		return Card{}, fmt.Errorf("get card: %w", err)
	}
	return card, nil
}

func (s *PostgresStore) UpdateCardContent(ctx context.Context, cardID int64, content string, updatedBy int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET content=$2, updated_by=$3, updated_at=NOW() WHERE id=$1
	`, cardID, content, updatedBy)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return requireRow(res)
}

// DeleteCard removes the card; its tags follow through the foreign key.
func (s *PostgresStore) DeleteCard(ctx context.Context, cardID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, cardID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) BoardIDByCard(ctx context.Context, cardID int64) (int64, error) {
	var boardID int64
	err := s.db.QueryRowContext(ctx, `SELECT board_id FROM cards WHERE id=$1`, cardID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("board id by card: %w", err)
	}
	return boardID, nil
}

func (s *PostgresStore) ColumnIDByCard(ctx context.Context, cardID int64) (int64, error) {
	var columnID int64
	err := s.db.QueryRowContext(ctx, `SELECT column_id FROM cards WHERE id=$1`, cardID).Scan(&columnID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("column id by card: %w", err)
	}
	return columnID, nil
}

// LastCardKey returns the bottom order key in the column, or nil when the
// column is empty.
func (s *PostgresStore) LastCardKey(ctx context.Context, columnID int64) (*float64, error) {
	var key sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(order_key) FROM cards WHERE column_id=$1
	`, columnID).Scan(&key)
	if err != nil {
		return nil, fmt.Errorf("last card key: %w", err)
	}
	if !key.Valid {
		return nil, nil
	}
	return &key.Float64, nil
}

// CardKeyWindow returns the moving card's key followed by up to size-1
// sibling keys in the direction of the move.
func (s *PostgresStore) CardKeyWindow(ctx context.Context, columnID, cardID int64, size int, down bool) ([]float64, error) {
	query := `
		SELECT order_key FROM cards
		WHERE column_id=$1 AND order_key >= (SELECT order_key FROM cards WHERE id=$2)
		ORDER BY order_key ASC LIMIT $3
	`
	if !down {
		query = `
			SELECT order_key FROM cards
			WHERE column_id=$1 AND order_key <= (SELECT order_key FROM cards WHERE id=$2)
			ORDER BY order_key DESC LIMIT $3
		`
	}
	return s.keyWindow(ctx, query, columnID, cardID, size)
}

func (s *PostgresStore) SetCardKey(ctx context.Context, cardID int64, key float64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cards SET order_key=$2 WHERE id=$1`, cardID, key)
	if err != nil {
		return fmt.Errorf("set card key: %w", err)
	}
	return requireRow(res)
}

// TransferCard moves the card to another column, placing it at the given key.
func (s *PostgresStore) TransferCard(ctx context.Context, cardID, columnID int64, key float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cards SET column_id=$2, order_key=$3, updated_at=NOW() WHERE id=$1
	`, cardID, columnID, key)
	if err != nil {
		return fmt.Errorf("transfer card: %w", err)
	}
	return requireRow(res)
}

// RenumberCards rewrites every card key in the column to evenly spaced values
// in one transaction. Relative order is preserved.
func (s *PostgresStore) RenumberCards(ctx context.Context, columnID int64) error {
	return s.renumber(ctx, `
		SELECT id FROM cards WHERE column_id=$1 ORDER BY order_key ASC FOR UPDATE
	`, `UPDATE cards SET order_key=$2 WHERE id=$1`, columnID)
}

func (s *PostgresStore) ListCardsByBoard(ctx context.Context, boardID int64) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, column_id, board_id, content, order_key, has_tag, updated_by, updated_at
		FROM cards WHERE board_id=$1
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list cards by board: %w", err)
	}
	defer rows.Close()

	cards := make([]Card, 0)
	for rows.Next() {
		var card Card
		if err := rows.Scan(&card.ID, &card.ColumnID, &card.BoardID, &card.Content, &card.OrderKey,
			&card.HasTag, &card.UpdatedBy, &card.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return cards, nil
}

// ---- tags ----

func (s *PostgresStore) InsertTag(ctx context.Context, tag Tag) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert tag: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tags (card_id, board_id, color, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, tag.CardID, tag.BoardID, tag.Color, tag.Content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert tag: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE cards SET has_tag=TRUE WHERE id=$1`, tag.CardID); err != nil {
		return 0, fmt.Errorf("mark card tagged: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert tag: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTag(ctx context.Context, tagID int64) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, card_id, board_id, color, content FROM tags WHERE id=$1
	`, tagID).Scan(&tag.ID, &tag.CardID, &tag.BoardID, &tag.Color, &tag.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	if err != nil {
		return Tag{}, fmt.Errorf("get tag: %w", err)
	}
	return tag, nil
}

func (s *PostgresStore) ListTagsByCard(ctx context.Context, cardID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, board_id, color, content FROM tags WHERE card_id=$1 ORDER BY id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list tags by card: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.CardID, &tag.BoardID, &tag.Color, &tag.Content); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// DeleteTag removes the tag and clears the card's has_tag flag when it was the
// last one.
func (s *PostgresStore) DeleteTag(ctx context.Context, tagID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tag: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var cardID int64
	err = tx.QueryRowContext(ctx, `DELETE FROM tags WHERE id=$1 RETURNING card_id`, tagID).Scan(&cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cards SET has_tag=EXISTS(SELECT 1 FROM tags WHERE card_id=$1) WHERE id=$1
	`, cardID); err != nil {
		return fmt.Errorf("refresh card tag flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tag: %w", err)
	}
	return nil
}

// ---- assembled content ----

// GetBoardContent assembles the full board snapshot: columns left-to-right,
// cards top-to-bottom, tags attached to their card.
func (s *PostgresStore) GetBoardContent(ctx context.Context, boardID int64) (BoardContent, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return BoardContent{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, title, order_key FROM columns
		WHERE board_id=$1 ORDER BY order_key ASC
	`, boardID)
	if err != nil {
		return BoardContent{}, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	content := BoardContent{Board: board, Columns: make([]ColumnContent, 0)}
	byColumn := make(map[int64]int)
	for rows.Next() {
		var column Column
		if err := rows.Scan(&column.ID, &column.BoardID, &column.Title, &column.OrderKey); err != nil {
			return BoardContent{}, fmt.Errorf("scan column: %w", err)
		}
		byColumn[column.ID] = len(content.Columns)
		content.Columns = append(content.Columns, ColumnContent{Column: column, Cards: make([]CardContent, 0)})
	}
	if err := rows.Err(); err != nil {
		return BoardContent{}, fmt.Errorf("iterate columns: %w", err)
	}

	cardRows, err := s.db.QueryContext(ctx, `
		SELECT id, column_id, board_id, content, order_key, has_tag, updated_by, updated_at
		FROM cards WHERE board_id=$1 ORDER BY order_key ASC
	`, boardID)
	if err != nil {
		return BoardContent{}, fmt.Errorf("list cards: %w", err)
	}
	defer cardRows.Close()

	byCard := make(map[int64][2]int)
	for cardRows.Next() {
		var card Card
		if err := cardRows.Scan(&card.ID, &card.ColumnID, &card.BoardID, &card.Content, &card.OrderKey,
			&card.HasTag, &card.UpdatedBy, &card.UpdatedAt); err != nil {
			return BoardContent{}, fmt.Errorf("scan card: %w", err)
		}
		ci, ok := byColumn[card.ColumnID]
		if !ok {
			continue
		}
		byCard[card.ID] = [2]int{ci, len(content.Columns[ci].Cards)}
		content.Columns[ci].Cards = append(content.Columns[ci].Cards, CardContent{Card: card, Tags: make([]Tag, 0)})
	}
	if err := cardRows.Err(); err != nil {
		return BoardContent{}, fmt.Errorf("iterate cards: %w", err)
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, board_id, color, content FROM tags WHERE board_id=$1
	`, boardID)
	if err != nil {
		return BoardContent{}, fmt.Errorf("list tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var tag Tag
		if err := tagRows.Scan(&tag.ID, &tag.CardID, &tag.BoardID, &tag.Color, &tag.Content); err != nil {
			return BoardContent{}, fmt.Errorf("scan tag: %w", err)
		}
		pos, ok := byCard[tag.CardID]
		if !ok {
			continue
		}
		card := &content.Columns[pos[0]].Cards[pos[1]]
		card.Tags = append(card.Tags, tag)
	}
	if err := tagRows.Err(); err != nil {
		return BoardContent{}, fmt.Errorf("iterate tags: %w", err)
	}

	return content, nil
}

// ---- helpers ----

func (s *PostgresStore) keyWindow(ctx context.Context, query string, parentID, itemID int64, size int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, query, parentID, itemID, size)
	if err != nil {
		return nil, fmt.Errorf("key window: %w", err)
	}
	defer rows.Close()

	// size can be huge when the caller wants every sibling.
	prealloc := size
	if prealloc > 64 {
		prealloc = 64
	}
	keys := make([]float64, 0, prealloc)
	for rows.Next() {
		var key float64
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) renumber(ctx context.Context, selectQuery, updateQuery string, parentID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin renumber: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, selectQuery, parentID)
	if err != nil {
		return fmt.Errorf("select for renumber: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate ids: %w", err)
	}
	rows.Close()

	keys := order.Renumber(len(ids))
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, updateQuery, id, keys[i]); err != nil {
			return fmt.Errorf("renumber row %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit renumber: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
