package onboarding

import (
	"context"

	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/google/uuid"
)

type Repo struct{ DB postgres.DB }

func (r *Repo) InsertCustomer(ctx context.Context, x Request) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO customers(id, name, phone, email)
		VALUES ($1,$2,$3,NULLIF($4,''))
		ON CONFLICT (id) DO NOTHING`, x.UserID, x.Name, x.Phone, x.Email)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// InsertRestaurant creates an unverified, inactive restaurant; an operator
// flips both flags once the listing is checked.
func (r *Repo) InsertRestaurant(ctx context.Context, x Request) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO restaurants(id, name, email, phone)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''))
		ON CONFLICT (id) DO NOTHING`, x.UserID, x.Name, x.Email, x.Phone)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) InsertPending(ctx context.Context, token string, a Application) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO pending_onboardings(id, token, role, name, email, phone)
		VALUES ($1,$2,$3,$4,$5,$6)`, uuid.NewString(), token, a.Role, a.Name, a.Email, a.Phone)
	return err
}

func (r *Repo) MarkVerified(ctx context.Context, token string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE pending_onboardings SET verified_at = now()
		WHERE token=$1 AND verified_at IS NULL`, token)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) PendingExists(ctx context.Context, token string) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pending_onboardings WHERE token=$1)`, token).Scan(&ok)
	return ok, err
}
