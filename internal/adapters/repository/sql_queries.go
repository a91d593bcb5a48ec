package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ssherman/the-greatest-sub000/internal/domain/model"
)

const configurationColumns = `id, name, domain, algorithm_version, exponent, bonus_pool_percentage,
	min_list_weight, max_list_dates_penalty_age, max_list_dates_penalty_percentage,
	apply_list_dates_penalty, inherit_penalties, is_global, user_id, is_primary, list_limit,
	inherited_from_id, published_at, archived, created_at, updated_at`

const listColumns = `id, domain, name, source, status, number_of_voters, high_quality_source,
	voter_count_estimated, voter_count_unknown, voter_names_unknown, category_specific,
	location_specific, yearly_award, year_published, estimated_quality`

const penaltyColumns = `id, name, description, media_type, is_global, user_id, dynamic, dynamic_kind`

// rankedItemsBatch bounds the rows written per INSERT statement.
const rankedItemsBatch = 200

type scanner interface {
	Scan(dest ...any) error
}

func (q *sqlQueries) LockConfiguration(ctx context.Context, id int64) error {
	if q.dialect != DialectPostgres {
		return nil
	}
	_, err := q.exec(ctx, `SELECT pg_advisory_xact_lock(?)`, id)
	if err != nil {
		return fmt.Errorf("lock configuration %d: %w", id, err)
	}
	return nil
}

func scanConfiguration(s scanner) (model.RankingConfiguration, error) {
	var (
		c                                model.RankingConfiguration
		domain                           string
		userID, listLimit, inheritedFrom sql.NullInt64
		publishedAt                      sql.NullTime
	)
	err := s.Scan(&c.ID, &c.Name, &domain, &c.AlgorithmVersion, &c.Exponent, &c.BonusPoolPercentage,
		&c.MinListWeight, &c.MaxListDatesPenaltyAge, &c.MaxListDatesPenaltyPercentage,
		&c.ApplyListDatesPenalty, &c.InheritPenalties, &c.Global, &userID, &c.Primary, &listLimit,
		&inheritedFrom, &publishedAt, &c.Archived, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.RankingConfiguration{}, mapError(err)
	}
	c.Domain = model.Domain(domain)
	c.UserID = int64Ptr(userID)
	c.ListLimit = intPtr(listLimit)
	c.InheritedFromID = int64Ptr(inheritedFrom)
	c.PublishedAt = timePtr(publishedAt)
	return c, nil
}

func (q *sqlQueries) GetConfiguration(ctx context.Context, id int64) (model.RankingConfiguration, error) {
	c, err := scanConfiguration(q.queryRow(ctx,
		`SELECT `+configurationColumns+` FROM ranking_configurations WHERE id = ?`, id))
	if err != nil {
		return c, fmt.Errorf("configuration %d: %w", id, err)
	}
	return c, nil
}

func (q *sqlQueries) ListConfigurations(ctx context.Context, f ConfigurationFilter) ([]model.RankingConfiguration, error) {
	var (
		where []string
		args  []any
	)
	if f.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, string(f.Domain))
	}
	if !f.IncludeArchived {
		where = append(where, "archived = ?")
		args = append(args, false)
	}
	stmt := `SELECT ` + configurationColumns + ` FROM ranking_configurations`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := q.query(ctx, stmt+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list configurations: %w", err)
	}
	defer rows.Close()

	var out []model.RankingConfiguration
	for rows.Next() {
		c, err := scanConfiguration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *sqlQueries) PrimaryConfigurationIDs(ctx context.Context, d model.Domain) ([]int64, error) {
	rows, err := q.query(ctx,
		`SELECT id FROM ranking_configurations WHERE domain = ? AND is_primary = ? ORDER BY id`, string(d), true)
	if err != nil {
		return nil, fmt.Errorf("primary configurations: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (q *sqlQueries) InsertConfiguration(ctx context.Context, c *model.RankingConfiguration) error {
	now := q.now()
	id, err := q.insertReturningID(ctx, `INSERT INTO ranking_configurations (
		name, domain, algorithm_version, exponent, bonus_pool_percentage, min_list_weight,
		max_list_dates_penalty_age, max_list_dates_penalty_percentage, apply_list_dates_penalty,
		inherit_penalties, is_global, user_id, is_primary, list_limit, inherited_from_id,
		published_at, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, string(c.Domain), c.AlgorithmVersion, c.Exponent, c.BonusPoolPercentage, c.MinListWeight,
		c.MaxListDatesPenaltyAge, c.MaxListDatesPenaltyPercentage, c.ApplyListDatesPenalty,
		c.InheritPenalties, c.Global, nullInt64(c.UserID), c.Primary, nullInt(c.ListLimit),
		nullInt64(c.InheritedFromID), nullTime(c.PublishedAt), c.Archived, now, now)
	if err != nil {
		return fmt.Errorf("insert configuration: %w", err)
	}
	c.ID, c.CreatedAt, c.UpdatedAt = id, now, now
	return nil
}

func (q *sqlQueries) UpdateConfiguration(ctx context.Context, c *model.RankingConfiguration) error {
	now := q.now()
	res, err := q.exec(ctx, `UPDATE ranking_configurations SET
		name = ?, domain = ?, algorithm_version = ?, exponent = ?, bonus_pool_percentage = ?,
		min_list_weight = ?, max_list_dates_penalty_age = ?, max_list_dates_penalty_percentage = ?,
		apply_list_dates_penalty = ?, inherit_penalties = ?, is_global = ?, user_id = ?, is_primary = ?,
		list_limit = ?, inherited_from_id = ?, published_at = ?, archived = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, string(c.Domain), c.AlgorithmVersion, c.Exponent, c.BonusPoolPercentage,
		c.MinListWeight, c.MaxListDatesPenaltyAge, c.MaxListDatesPenaltyPercentage,
		c.ApplyListDatesPenalty, c.InheritPenalties, c.Global, nullInt64(c.UserID), c.Primary,
		nullInt(c.ListLimit), nullInt64(c.InheritedFromID), nullTime(c.PublishedAt), c.Archived, now,
		c.ID)
	if err != nil {
		return fmt.Errorf("update configuration %d: %w", c.ID, err)
	}
	if err := expectOne(res, fmt.Sprintf("configuration %d", c.ID)); err != nil {
		return err
	}
	c.UpdatedAt = now
	return nil
}

func (q *sqlQueries) DeleteConfiguration(ctx context.Context, id int64) error {
	for _, stmt := range []string{
		`DELETE FROM ranked_items WHERE configuration_id = ?`,
		`DELETE FROM ranked_lists WHERE configuration_id = ?`,
		`DELETE FROM penalty_applications WHERE configuration_id = ?`,
		`UPDATE ranking_configurations SET inherited_from_id = NULL WHERE inherited_from_id = ?`,
	} {
		if _, err := q.exec(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete configuration %d: %w", id, err)
		}
	}
	res, err := q.exec(ctx, `DELETE FROM ranking_configurations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete configuration %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("configuration %d", id))
}

func scanList(s scanner) (model.List, error) {
	var (
		l                     model.List
		domain, status        string
		voters, year, quality sql.NullInt64
	)
	err := s.Scan(&l.ID, &domain, &l.Name, &l.Source, &status, &voters, &l.HighQualitySource,
		&l.VoterCountEstimated, &l.VoterCountUnknown, &l.VoterNamesUnknown, &l.CategorySpecific,
		&l.LocationSpecific, &l.YearlyAward, &year, &quality)
	if err != nil {
		return model.List{}, mapError(err)
	}
	l.Domain = model.Domain(domain)
	l.Status = model.ListStatus(status)
	l.NumberOfVoters = intPtr(voters)
	l.YearPublished = intPtr(year)
	l.EstimatedQuality = intPtr(quality)
	return l, nil
}

func (q *sqlQueries) GetList(ctx context.Context, id int64) (model.List, error) {
	l, err := scanList(q.queryRow(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ?`, id))
	if err != nil {
		return l, fmt.Errorf("list %d: %w", id, err)
	}
	return l, nil
}

func (q *sqlQueries) InsertList(ctx context.Context, l *model.List) error {
	id, err := q.insertReturningID(ctx, `INSERT INTO lists (
		domain, name, source, status, number_of_voters, high_quality_source, voter_count_estimated,
		voter_count_unknown, voter_names_unknown, category_specific, location_specific, yearly_award,
		year_published, estimated_quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(l.Domain), l.Name, l.Source, string(l.Status), nullInt(l.NumberOfVoters),
		l.HighQualitySource, l.VoterCountEstimated, l.VoterCountUnknown, l.VoterNamesUnknown,
		l.CategorySpecific, l.LocationSpecific, l.YearlyAward, nullInt(l.YearPublished),
		nullInt(l.EstimatedQuality))
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	l.ID = id
	return nil
}

func (q *sqlQueries) GetItem(ctx context.Context, id int64) (model.Item, error) {
	var (
		it     model.Item
		domain string
	)
	err := q.queryRow(ctx, `SELECT id, domain, title FROM items WHERE id = ?`, id).
		Scan(&it.ID, &domain, &it.Title)
	if err != nil {
		return model.Item{}, fmt.Errorf("item %d: %w", id, mapError(err))
	}
	it.Domain = model.Domain(domain)
	return it, nil
}

func (q *sqlQueries) InsertItem(ctx context.Context, it *model.Item) error {
	id, err := q.insertReturningID(ctx, `INSERT INTO items (domain, title) VALUES (?, ?)`,
		string(it.Domain), it.Title)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	it.ID = id
	return nil
}

func (q *sqlQueries) InsertListItem(ctx context.Context, li *model.ListItem) error {
	it, err := q.GetItem(ctx, li.ItemID)
	if err != nil {
		return err
	}
	id, err := q.insertReturningID(ctx,
		`INSERT INTO list_items (list_id, item_id, position, verified) VALUES (?, ?, ?, ?)`,
		li.ListID, li.ItemID, li.Position, li.Verified)
	if err != nil {
		return fmt.Errorf("insert list item: %w", err)
	}
	li.ID = id
	li.ItemDomain = it.Domain
	return nil
}

func (q *sqlQueries) ListItems(ctx context.Context, listID int64) ([]model.ListItem, error) {
	rows, err := q.query(ctx, `SELECT li.id, li.list_id, li.item_id, li.position, li.verified, i.domain
		FROM list_items li JOIN items i ON i.id = li.item_id
		WHERE li.list_id = ? ORDER BY li.position, li.id`, listID)
	if err != nil {
		return nil, fmt.Errorf("list items of %d: %w", listID, err)
	}
	defer rows.Close()

	var out []model.ListItem
	for rows.Next() {
		var (
			li     model.ListItem
			domain string
		)
		if err := rows.Scan(&li.ID, &li.ListID, &li.ItemID, &li.Position, &li.Verified, &domain); err != nil {
			return nil, mapError(err)
		}
		li.ItemDomain = model.Domain(domain)
		out = append(out, li)
	}
	return out, rows.Err()
}

func scanPenalty(s scanner) (model.Penalty, error) {
	var (
		p               model.Penalty
		mediaType, kind string
		userID          sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Description, &mediaType, &p.Global, &userID, &p.Dynamic, &kind); err != nil {
		return model.Penalty{}, mapError(err)
	}
	p.MediaType = model.MediaType(mediaType)
	p.DynamicKind = model.DynamicKind(kind)
	p.UserID = int64Ptr(userID)
	return p, nil
}

func (q *sqlQueries) GetPenalty(ctx context.Context, id int64) (model.Penalty, error) {
	p, err := scanPenalty(q.queryRow(ctx, `SELECT `+penaltyColumns+` FROM penalties WHERE id = ?`, id))
	if err != nil {
		return p, fmt.Errorf("penalty %d: %w", id, err)
	}
	return p, nil
}

func (q *sqlQueries) InsertPenalty(ctx context.Context, p *model.Penalty) error {
	id, err := q.insertReturningID(ctx, `INSERT INTO penalties
		(name, description, media_type, is_global, user_id, dynamic, dynamic_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, string(p.MediaType), p.Global, nullInt64(p.UserID), p.Dynamic, string(p.DynamicKind))
	if err != nil {
		return fmt.Errorf("insert penalty: %w", err)
	}
	p.ID = id
	return nil
}

func (q *sqlQueries) DynamicPenalties(ctx context.Context) ([]model.Penalty, error) {
	rows, err := q.query(ctx, `SELECT `+penaltyColumns+` FROM penalties WHERE dynamic = ? ORDER BY id`, true)
	if err != nil {
		return nil, fmt.Errorf("dynamic penalties: %w", err)
	}
	defer rows.Close()

	var out []model.Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *sqlQueries) InsertListPenalty(ctx context.Context, lp *model.ListPenalty) error {
	id, err := q.insertReturningID(ctx, `INSERT INTO list_penalties (list_id, penalty_id) VALUES (?, ?)`,
		lp.ListID, lp.PenaltyID)
	if err != nil {
		return fmt.Errorf("attach penalty %d to list %d: %w", lp.PenaltyID, lp.ListID, err)
	}
	lp.ID = id
	return nil
}

func (q *sqlQueries) DeleteListPenalty(ctx context.Context, listID, penaltyID int64) error {
	res, err := q.exec(ctx, `DELETE FROM list_penalties WHERE list_id = ? AND penalty_id = ?`, listID, penaltyID)
	if err != nil {
		return fmt.Errorf("detach penalty %d from list %d: %w", penaltyID, listID, err)
	}
	return expectOne(res, fmt.Sprintf("penalty %d on list %d", penaltyID, listID))
}

func (q *sqlQueries) ListPenalties(ctx context.Context, listID int64) ([]model.ListPenalty, error) {
	rows, err := q.query(ctx, `SELECT id, list_id, penalty_id FROM list_penalties WHERE list_id = ? ORDER BY id`, listID)
	if err != nil {
		return nil, fmt.Errorf("penalties of list %d: %w", listID, err)
	}
	defer rows.Close()

	var out []model.ListPenalty
	for rows.Next() {
		var lp model.ListPenalty
		if err := rows.Scan(&lp.ID, &lp.ListID, &lp.PenaltyID); err != nil {
			return nil, mapError(err)
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

func (q *sqlQueries) GetPenaltyApplication(ctx context.Context, id int64) (model.PenaltyApplication, error) {
	var pa model.PenaltyApplication
	err := q.queryRow(ctx, `SELECT id, penalty_id, configuration_id, value FROM penalty_applications WHERE id = ?`, id).
		Scan(&pa.ID, &pa.PenaltyID, &pa.ConfigurationID, &pa.Value)
	if err != nil {
		return model.PenaltyApplication{}, fmt.Errorf("penalty application %d: %w", id, mapError(err))
	}
	return pa, nil
}

func (q *sqlQueries) InsertPenaltyApplication(ctx context.Context, pa *model.PenaltyApplication) error {
	id, err := q.insertReturningID(ctx,
		`INSERT INTO penalty_applications (penalty_id, configuration_id, value) VALUES (?, ?, ?)`,
		pa.PenaltyID, pa.ConfigurationID, pa.Value)
	if err != nil {
		return fmt.Errorf("apply penalty %d to configuration %d: %w", pa.PenaltyID, pa.ConfigurationID, err)
	}
	pa.ID = id
	return nil
}

func (q *sqlQueries) UpdatePenaltyApplication(ctx context.Context, pa *model.PenaltyApplication) error {
	res, err := q.exec(ctx, `UPDATE penalty_applications SET value = ? WHERE id = ?`, pa.Value, pa.ID)
	if err != nil {
		return fmt.Errorf("update penalty application %d: %w", pa.ID, err)
	}
	if err := expectOne(res, fmt.Sprintf("penalty application %d", pa.ID)); err != nil {
		return err
	}
	updated, err := q.GetPenaltyApplication(ctx, pa.ID)
	if err != nil {
		return err
	}
	*pa = updated
	return nil
}

func (q *sqlQueries) DeletePenaltyApplication(ctx context.Context, id int64) error {
	res, err := q.exec(ctx, `DELETE FROM penalty_applications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete penalty application %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("penalty application %d", id))
}

func (q *sqlQueries) PenaltyApplications(ctx context.Context, configurationID int64) ([]model.PenaltyApplication, error) {
	rows, err := q.query(ctx, `SELECT id, penalty_id, configuration_id, value
		FROM penalty_applications WHERE configuration_id = ? ORDER BY id`, configurationID)
	if err != nil {
		return nil, fmt.Errorf("penalty applications of %d: %w", configurationID, err)
	}
	defer rows.Close()

	var out []model.PenaltyApplication
	for rows.Next() {
		var pa model.PenaltyApplication
		if err := rows.Scan(&pa.ID, &pa.PenaltyID, &pa.ConfigurationID, &pa.Value); err != nil {
			return nil, mapError(err)
		}
		out = append(out, pa)
	}
	return out, rows.Err()
}

func (q *sqlQueries) InsertRankedList(ctx context.Context, rl *model.RankedList) error {
	id, err := q.insertReturningID(ctx, `INSERT INTO ranked_lists (configuration_id, list_id) VALUES (?, ?)`,
		rl.ConfigurationID, rl.ListID)
	if err != nil {
		return fmt.Errorf("add list %d to configuration %d: %w", rl.ListID, rl.ConfigurationID, err)
	}
	rl.ID = id
	return nil
}

func (q *sqlQueries) DeleteRankedList(ctx context.Context, configurationID, listID int64) error {
	res, err := q.exec(ctx, `DELETE FROM ranked_lists WHERE configuration_id = ? AND list_id = ?`, configurationID, listID)
	if err != nil {
		return fmt.Errorf("remove list %d from configuration %d: %w", listID, configurationID, err)
	}
	return expectOne(res, fmt.Sprintf("list %d under configuration %d", listID, configurationID))
}

func (q *sqlQueries) RankedLists(ctx context.Context, configurationID int64) ([]model.RankedList, error) {
	rows, err := q.query(ctx, `SELECT id, configuration_id, list_id, weight, weight_details
		FROM ranked_lists WHERE configuration_id = ? ORDER BY list_id`, configurationID)
	if err != nil {
		return nil, fmt.Errorf("ranked lists of %d: %w", configurationID, err)
	}
	defer rows.Close()

	var out []model.RankedList
	for rows.Next() {
		var (
			rl      model.RankedList
			weight  sql.NullFloat64
			details sql.NullString
		)
		if err := rows.Scan(&rl.ID, &rl.ConfigurationID, &rl.ListID, &weight, &details); err != nil {
			return nil, mapError(err)
		}
		if weight.Valid {
			w := weight.Float64
			rl.Weight = &w
		}
		if details.Valid && details.String != "" {
			var d model.WeightDetails
			if err := json.Unmarshal([]byte(details.String), &d); err != nil {
				return nil, fmt.Errorf("decode weight details of ranked list %d: %w", rl.ID, err)
			}
			rl.Details = &d
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}

func (q *sqlQueries) UpdateRankedListWeight(ctx context.Context, id int64, weight float64, details model.WeightDetails) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode weight details: %w", err)
	}
	res, err := q.exec(ctx, `UPDATE ranked_lists SET weight = ?, weight_details = ? WHERE id = ?`, weight, string(raw), id)
	if err != nil {
		return fmt.Errorf("update ranked list %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("ranked list %d", id))
}

func (q *sqlQueries) ReplaceRankedItems(ctx context.Context, configurationID int64, items []model.RankedItem) error {
	if _, err := q.exec(ctx, `DELETE FROM ranked_items WHERE configuration_id = ?`, configurationID); err != nil {
		return fmt.Errorf("clear ranked items of %d: %w", configurationID, err)
	}
	for start := 0; start < len(items); start += rankedItemsBatch {
		end := min(start+rankedItemsBatch, len(items))
		batch := items[start:end]

		var b strings.Builder
		b.WriteString(`INSERT INTO ranked_items (configuration_id, item_id, rank, score) VALUES `)
		args := make([]any, 0, len(batch)*4)
		for i, it := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?)")
			args = append(args, configurationID, it.ItemID, it.Rank, it.Score)
		}
		if _, err := q.exec(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("insert ranked items of %d: %w", configurationID, err)
		}
	}
	return nil
}

func (q *sqlQueries) RankedItems(ctx context.Context, configurationID int64, limit int) ([]model.RankedItem, error) {
	stmt := `SELECT configuration_id, item_id, rank, score FROM ranked_items
		WHERE configuration_id = ? ORDER BY rank, item_id`
	args := []any{configurationID}
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := q.query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("ranked items of %d: %w", configurationID, err)
	}
	defer rows.Close()

	var out []model.RankedItem
	for rows.Next() {
		var it model.RankedItem
		if err := rows.Scan(&it.ConfigurationID, &it.ItemID, &it.Rank, &it.Score); err != nil {
			return nil, mapError(err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (q *sqlQueries) RankedItem(ctx context.Context, configurationID, itemID int64) (model.RankedItem, error) {
	var it model.RankedItem
	err := q.queryRow(ctx, `SELECT configuration_id, item_id, rank, score FROM ranked_items
		WHERE configuration_id = ? AND item_id = ?`, configurationID, itemID).
		Scan(&it.ConfigurationID, &it.ItemID, &it.Rank, &it.Score)
	if err != nil {
		return model.RankedItem{}, fmt.Errorf("item %d under configuration %d: %w", itemID, configurationID, mapError(err))
	}
	return it, nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
