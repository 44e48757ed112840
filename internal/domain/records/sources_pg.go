package records

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HUNCHO76/Afya-Nyumbani-sub002/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// VitalSignsSourcePG reads the vital_sign table written by the care-visit
// workflow.
type VitalSignsSourcePG struct {
	pool *pgxpool.Pool
}

func NewVitalSignsSourcePG(pool *pgxpool.Pool) *VitalSignsSourcePG {
	return &VitalSignsSourcePG{pool: pool}
}

func (s *VitalSignsSourcePG) FetchByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Record, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `
		SELECT id, recorded_at, systolic, diastolic, heart_rate, temperature, spo2
		FROM vital_sign WHERE client_id = $1
		ORDER BY recorded_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var (
			id          uuid.UUID
			recordedAt  time.Time
			systolic    *int
			diastolic   *int
			heartRate   *int
			temperature *float64
			spo2        *int
		)
		if err := rows.Scan(&id, &recordedAt, &systolic, &diastolic, &heartRate, &temperature, &spo2); err != nil {
			return nil, err
		}
		data := map[string]string{}
		summary := ""
		if systolic != nil && diastolic != nil {
			data["blood_pressure"] = fmt.Sprintf("%d/%d", *systolic, *diastolic)
			summary = "BP " + data["blood_pressure"]
		}
		if heartRate != nil {
			data["heart_rate"] = fmt.Sprintf("%d", *heartRate)
		}
		if temperature != nil {
			data["temperature"] = fmt.Sprintf("%.1f", *temperature)
		}
		if spo2 != nil {
			data["spo2"] = fmt.Sprintf("%d", *spo2)
		}
		items = append(items, Record{
			ID: id, Type: TypeVitalSigns, RecordedAt: recordedAt,
			Summary: summary, Data: data,
		})
	}
	return items, rows.Err()
}

// VisitRecordsSourcePG reads the visit table (home-care visit notes).
type VisitRecordsSourcePG struct {
	pool *pgxpool.Pool
}

func NewVisitRecordsSourcePG(pool *pgxpool.Pool) *VisitRecordsSourcePG {
	return &VisitRecordsSourcePG{pool: pool}
}

func (s *VisitRecordsSourcePG) FetchByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Record, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `
		SELECT id, visited_at, caregiver_name, purpose, notes
		FROM visit WHERE client_id = $1
		ORDER BY visited_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var (
			id            uuid.UUID
			visitedAt     time.Time
			caregiverName string
			purpose       string
			notes         *string
		)
		if err := rows.Scan(&id, &visitedAt, &caregiverName, &purpose, &notes); err != nil {
			return nil, err
		}
		data := map[string]string{
			"caregiver": caregiverName,
			"purpose":   purpose,
		}
		if notes != nil {
			data["notes"] = *notes
		}
		items = append(items, Record{
			ID: id, Type: TypeVisitRecords, RecordedAt: visitedAt,
			Summary: purpose, Data: data,
		})
	}
	return items, rows.Err()
}

// MedicalHistorySourcePG reads the medical_history table.
type MedicalHistorySourcePG struct {
	pool *pgxpool.Pool
}

func NewMedicalHistorySourcePG(pool *pgxpool.Pool) *MedicalHistorySourcePG {
	return &MedicalHistorySourcePG{pool: pool}
}

func (s *MedicalHistorySourcePG) FetchByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]Record, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, `
		SELECT id, diagnosed_on, condition, status, notes
		FROM medical_history WHERE client_id = $1
		ORDER BY diagnosed_on DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		var (
			id          uuid.UUID
			diagnosedOn time.Time
			condition   string
			status      string
			notes       *string
		)
		if err := rows.Scan(&id, &diagnosedOn, &condition, &status, &notes); err != nil {
			return nil, err
		}
		data := map[string]string{"status": status}
		if notes != nil {
			data["notes"] = *notes
		}
		items = append(items, Record{
			ID: id, Type: TypeMedicalHistory, RecordedAt: diagnosedOn,
			Summary: condition, Data: data,
		})
	}
	return items, rows.Err()
}
