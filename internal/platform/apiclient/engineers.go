package apiclient

import (
	"context"
	"net/http"

	"labourpanel/internal/domain/engineer"
)

type wireEngineer struct {
	ID             flexID `json:"id"`
	MongoID        flexID `json:"_id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	AlternatePhone string `json:"alternatePhone"`
	EmployeeID     string `json:"employeeId"`
	Address        string `json:"address"`
	Username       string `json:"username"`
	ProfileImage   string `json:"profileImage"`
}

func (c *Client) CreateEngineer(ctx context.Context, payload engineer.Payload) error {
	return c.do(ctx, "create engineer", http.MethodPost, c.endpoint("engineers"), payload, nil)
}

func (c *Client) UpdateEngineer(ctx context.Context, id string, payload engineer.Payload) error {
	return c.do(ctx, "update engineer", http.MethodPut, c.endpoint("engineers", id), payload, nil)
}

// GetEngineer fetches the record an edit form is hydrated from.
func (c *Client) GetEngineer(ctx context.Context, id string) (engineer.Engineer, error) {
	var w wireEngineer
	if err := c.do(ctx, "get engineer", http.MethodGet, c.endpoint("engineers", id), nil, &w); err != nil {
		return engineer.Engineer{}, err
	}
	return engineer.Engineer{
		ID:              pickID(w.ID, w.MongoID),
		Name:            w.Name,
		Phone:           w.Phone,
		AlternatePhone:  w.AlternatePhone,
		EmployeeID:      w.EmployeeID,
		Address:         w.Address,
		Username:        w.Username,
		ProfileImageURL: w.ProfileImage,
	}, nil
}
