// Package esign is a client for the NGSign transaction REST API.
//
// Every operation reads the credentials from its CredentialSource, runs under
// its own timeout and never retries on its own: creating a transaction twice
// would bill and notify twice.
package esign

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/diewo77/go-esign/internal/logging"
	"github.com/pkg/errors"
)

const maxResponseBytes = 64 << 20

// Credentials locate and authenticate the signature API.
type Credentials struct {
	BaseURL string
	Token   string
}

// CredentialSource provides the credentials to use for a call.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials is a CredentialSource returning fixed values.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// Timeouts bound each operation.
type Timeouts struct {
	Create time.Duration
	Launch time.Duration
	Status time.Duration
	Fetch  time.Duration
}

// DefaultTimeouts returns 30s for create and launch, 15s for status and 60s for fetch.
func DefaultTimeouts() Timeouts {
	return Timeouts{Create: 30 * time.Second, Launch: 30 * time.Second, Status: 15 * time.Second, Fetch: 60 * time.Second}
}

// Client talks to the signature API.
type Client struct {
	creds      CredentialSource
	httpClient *http.Client
	timeouts   Timeouts
	maxBody    int64
	log        logging.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeouts overrides the non-zero timeouts of t.
func WithTimeouts(t Timeouts) Option {
	return func(c *Client) {
		if t.Create > 0 {
			c.timeouts.Create = t.Create
		}
		if t.Launch > 0 {
			c.timeouts.Launch = t.Launch
		}
		if t.Status > 0 {
			c.timeouts.Status = t.Status
		}
		if t.Fetch > 0 {
			c.timeouts.Fetch = t.Fetch
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMaxResponseSize caps the size of a response body, signed documents included.
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewClient builds a client reading its credentials from creds on every call.
func NewClient(creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		httpClient: &http.Client{},
		timeouts:   DefaultTimeouts(),
		maxBody:    maxResponseBytes,
		log:        logging.GetLogger("esign"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transaction identifies a created transaction and its uploaded document.
type Transaction struct {
	UUID       string
	DocumentID string
}

// Signer is the person asked to sign.
type Signer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// Placement is where and how the document is signed.
type Placement struct {
	Page          int
	XAxis         int
	YAxis         int
	SignatureType string
}

// LaunchRequest starts the signature process of a created transaction.
type LaunchRequest struct {
	TransactionUUID string
	DocumentID      string
	Signer          Signer
	Placement       Placement
	Message         string
}

type uploadedFile struct {
	FileName      string `json:"fileName"`
	FileExtension string `json:"fileExtension"`
	FileBase64    string `json:"fileBase64"`
}

type pdfRef struct {
	Identifier string `json:"identifier"`
}

type transactionObject struct {
	UUID    string   `json:"uuid"`
	Status  string   `json:"status"`
	PDFs    []pdfRef `json:"pdfs"`
	Signers []struct {
		SignatureURL string `json:"signatureUrl"`
		URL          string `json:"url"`
	} `json:"signers"`
}

type envelope struct {
	Object  json.RawMessage `json:"object"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type launchBody struct {
	SigConf []sigConf `json:"sigConf"`
	Message string    `json:"message"`
}

type sigConf struct {
	Signer      signerBody   `json:"signer"`
	SigType     string       `json:"sigType"`
	DocsConfigs []docsConfig `json:"docsConfigs"`
	Mode        string       `json:"mode"`
	OTP         string       `json:"otp"`
}

type signerBody struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

type docsConfig struct {
	Page       int    `json:"page"`
	XAxis      int    `json:"xAxis"`
	YAxis      int    `json:"yAxis"`
	Identifier string `json:"identifier"`
}

// CreateTransaction uploads the PDF and returns the new transaction.
func (c *Client) CreateTransaction(ctx context.Context, pdf []byte, filename string) (Transaction, error) {
	if len(pdf) == 0 {
		return Transaction{}, errors.New("esign: create transaction: empty document")
	}
	body := []uploadedFile{{
		FileName:      filename,
		FileExtension: "pdf",
		FileBase64:    base64.StdEncoding.EncodeToString(pdf),
	}}
	var obj transactionObject
	if err := c.doJSON(ctx, "create transaction", c.timeouts.Create, http.MethodPost, "/server/protected/transaction/pdfs", body, &obj); err != nil {
		return Transaction{}, err
	}
	if obj.UUID == "" || len(obj.PDFs) == 0 || obj.PDFs[0].Identifier == "" {
		return Transaction{}, &APIError{Op: "create transaction", StatusCode: http.StatusOK, Message: "response carries no transaction uuid or document identifier"}
	}
	c.log.Info("transaction created", "transaction_uuid", obj.UUID, "file", filename)
	return Transaction{UUID: obj.UUID, DocumentID: obj.PDFs[0].Identifier}, nil
}

// Launch sends the signature request to the signer and returns the signer url.
// The url is empty when the API does not return one.
func (c *Client) Launch(ctx context.Context, req LaunchRequest) (string, error) {
	if req.TransactionUUID == "" {
		return "", errors.New("esign: launch: missing transaction uuid")
	}
	body := launchBody{
		SigConf: []sigConf{{
			Signer: signerBody{
				FirstName:   req.Signer.FirstName,
				LastName:    req.Signer.LastName,
				Email:       req.Signer.Email,
				PhoneNumber: req.Signer.Phone,
			},
			SigType: req.Placement.SignatureType,
			DocsConfigs: []docsConfig{{
				Page:       req.Placement.Page,
				XAxis:      req.Placement.XAxis,
				YAxis:      req.Placement.YAxis,
				Identifier: req.DocumentID,
			}},
			Mode: "BY_MAIL",
			OTP:  "NONE",
		}},
		Message: req.Message,
	}
	path := "/server/protected/transaction/" + url.PathEscape(req.TransactionUUID) + "/launch"
	raw, _, err := c.do(ctx, "launch transaction", c.timeouts.Launch, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	// A 2xx means the transaction is launched; the body is read leniently.
	var env envelope
	var obj transactionObject
	if json.Unmarshal(raw, &env) == nil && len(env.Object) > 0 {
		_ = json.Unmarshal(env.Object, &obj)
	}
	var signerURL string
	if len(obj.Signers) > 0 {
		signerURL = obj.Signers[0].SignatureURL
		if signerURL == "" {
			signerURL = obj.Signers[0].URL
		}
	}
	if signerURL == "" {
		c.log.Warn("launch response carries no signer url", "transaction_uuid", req.TransactionUUID)
	}
	c.log.Info("transaction launched", "transaction_uuid", req.TransactionUUID)
	return signerURL, nil
}

// CheckStatus returns the current status of the transaction.
func (c *Client) CheckStatus(ctx context.Context, uuid string) (Status, error) {
	obj, err := c.transaction(ctx, uuid, c.timeouts.Status)
	if err != nil {
		return "", err
	}
	st := ParseStatus(obj.Status)
	if st == StatusUnknown {
		c.log.Warn("unrecognized transaction status", "transaction_uuid", uuid, "status", obj.Status)
	}
	return st, nil
}

// FetchSignedDocument downloads the signed PDF. It fails with ErrNotReady
// unless the transaction is signed.
func (c *Client) FetchSignedDocument(ctx context.Context, uuid string) ([]byte, error) {
	obj, err := c.transaction(ctx, uuid, c.timeouts.Status)
	if err != nil {
		return nil, err
	}
	if st := ParseStatus(obj.Status); st != StatusSigned {
		return nil, errors.Wrapf(ErrNotReady, "transaction %s is %s", uuid, st)
	}
	if len(obj.PDFs) == 0 || obj.PDFs[0].Identifier == "" {
		return nil, &APIError{Op: "fetch signed document", StatusCode: http.StatusOK, Message: "transaction carries no document identifier"}
	}
	path := "/server/any/transaction/" + url.PathEscape(uuid) + "/pdfs/" + url.PathEscape(obj.PDFs[0].Identifier)
	raw, header, err := c.do(ctx, "fetch signed document", c.timeouts.Fetch, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if strings.Contains(header.Get("Content-Type"), "json") {
		return decodeDocument(raw)
	}
	return raw, nil
}

func (c *Client) transaction(ctx context.Context, uuid string, timeout time.Duration) (transactionObject, error) {
	var obj transactionObject
	if uuid == "" {
		return obj, errors.New("esign: missing transaction uuid")
	}
	err := c.doJSON(ctx, "check status", timeout, http.MethodGet, "/server/any/transaction/"+url.PathEscape(uuid), nil, &obj)
	return obj, err
}

// decodeDocument accepts a JSON envelope whose object is either the base64
// content itself or an object with a fileBase64 field.
func decodeDocument(raw []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "esign: decode signed document")
	}
	var encoded string
	if err := json.Unmarshal(env.Object, &encoded); err != nil {
		var file struct {
			FileBase64 string `json:"fileBase64"`
		}
		if err := json.Unmarshal(env.Object, &file); err != nil {
			return nil, errors.Wrap(err, "esign: decode signed document")
		}
		encoded = file.FileBase64
	}
	doc, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "esign: decode signed document")
	}
	if len(doc) == 0 {
		return nil, &APIError{Op: "fetch signed document", StatusCode: http.StatusOK, Message: "empty document"}
	}
	return doc, nil
}

func (c *Client) doJSON(ctx context.Context, op string, timeout time.Duration, method, path string, body, out any) error {
	raw, _, err := c.do(ctx, op, timeout, method, path, body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Op: op, StatusCode: http.StatusOK, Message: "invalid json response: " + err.Error()}
	}
	if len(env.Object) == 0 || string(env.Object) == "null" {
		return &APIError{Op: op, StatusCode: http.StatusOK, Message: "response carries no object"}
	}
	if err := json.Unmarshal(env.Object, out); err != nil {
		return &APIError{Op: op, StatusCode: http.StatusOK, Message: "unexpected response object: " + err.Error()}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op string, timeout time.Duration, method, path string, body any) ([]byte, http.Header, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, nil, err
	}
	base := strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/")
	if base == "" || strings.TrimSpace(creds.Token) == "" {
		return nil, nil, ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "esign: %s: encode request", op)
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "esign: %s: build request", op)
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept", "application/json, application/pdf")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("signature api call failed", "op", op, "error", err, "duration", time.Since(start))
		return nil, nil, errors.Wrapf(ErrTransient, "%s: %v", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, nil, errors.Wrapf(ErrTransient, "%s: read response: %v", op, err)
	}
	if int64(len(raw)) > c.maxBody {
		c.log.Warn("signature api response too large", "op", op, "limit", c.maxBody)
		return nil, nil, &APIError{Op: op, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("response larger than %d bytes", c.maxBody)}
	}
	c.log.Debug("signature api call", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		c.log.Warn("signature api rejected call", "op", op, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, nil, apiErr
	}
	return raw, resp.Header, nil
}

func errorMessage(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}
