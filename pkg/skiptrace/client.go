// Package skiptrace looks up owner contact details for a property address
// by running a skip-trace actor on Apify.
package skiptrace

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-scorer/pkg/apify"
)

// DefaultActorID is the Connected Investors skip-trace actor.
const DefaultActorID = "connected-investors-skip-trace-service"

// Client defines the skip-trace operation.
type Client interface {
	Trace(ctx context.Context, req Request) (*Response, error)
}

// Request identifies the property to trace.
type Request struct {
	PropertyID string
	Address    string
}

// ParsedOwner is an owner name already split by the actor.
type ParsedOwner struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

// Response is the contact data found for a property. Found is false when
// the actor ran but had nothing for the address.
type Response struct {
	Found        bool          `json:"found"`
	Emails       []string      `json:"emails"`
	Phones       []string      `json:"phones"`
	Owners       []string      `json:"owners"`
	ParsedOwners []ParsedOwner `json:"parsedOwners"`
}

// Credentials are passed to the actor to log in to the data provider.
type Credentials struct {
	Username string
	Password string
}

// RunError reports an actor run that finished unsuccessfully.
type RunError struct {
	RunID   string
	Status  string
	Message string
}

func (e *RunError) Error() string {
	return "skiptrace: run " + e.RunID + " finished " + e.Status + ": " + e.Message
}

type actorInput struct {
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	PropertyID string `json:"propertyId"`
	Address    string `json:"address"`
}

type actorItem struct {
	Success bool            `json:"success"`
	Error   json.RawMessage `json:"error,omitempty"`
	Data    *struct {
		Emails       []string      `json:"emails"`
		Phones       []string      `json:"phones"`
		Owners       []string      `json:"owners"`
		ParsedOwners []ParsedOwner `json:"parsedOwners"`
	} `json:"data"`
}

type actorClient struct {
	apify   apify.Client
	actorID string
	creds   Credentials
}

// NewClient returns a Client that runs actorID (DefaultActorID when empty).
func NewClient(ap apify.Client, actorID string, creds Credentials) Client {
	if actorID == "" {
		actorID = DefaultActorID
	}
	return &actorClient{apify: ap, actorID: actorID, creds: creds}
}

func (c *actorClient) Trace(ctx context.Context, req Request) (*Response, error) {
	if req.Address == "" {
		return nil, eris.New("skiptrace: address is required")
	}

	run, err := c.apify.RunActor(ctx, c.actorID, actorInput{
		Username:   c.creds.Username,
		Password:   c.creds.Password,
		PropertyID: req.PropertyID,
		Address:    req.Address,
	})
	if err != nil {
		return nil, eris.Wrap(err, "skiptrace: run actor")
	}
	if !run.Succeeded() {
		return nil, &RunError{RunID: run.ID, Status: run.Status, Message: run.StatusMessage}
	}

	items, err := c.apify.DatasetItems(ctx, run.DefaultDatasetID, 0, 1)
	if err != nil {
		return nil, eris.Wrap(err, "skiptrace: read results")
	}
	if len(items) == 0 {
		return &Response{}, nil
	}

	var item actorItem
	if err := json.Unmarshal(items[0], &item); err != nil {
		return nil, eris.Wrap(err, "skiptrace: parse result")
	}
	if !item.Success || item.Data == nil {
		return &Response{}, nil
	}
	return &Response{
		Found:        true,
		Emails:       item.Data.Emails,
		Phones:       item.Data.Phones,
		Owners:       item.Data.Owners,
		ParsedOwners: item.Data.ParsedOwners,
	}, nil
}
