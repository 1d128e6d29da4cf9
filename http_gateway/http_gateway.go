// Package http_gateway presents a Runner of Transactions over HTTP.
package http_gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pc "go.sqltxn.dev/core/protocol"
)

// Executor runs Transactions. It's implemented by txnstore.Runner. The
// Context passed to RunTransaction carries the ID of the Transaction, as
// attached by protocol.WithTransactionID.
type Executor interface {
	RunTransaction(context.Context, *pc.Transaction) (*pc.Response, error)
}

// Gateway maps HTTP requests to Transactions of an Executor:
//
//   - POST / with a JSON-encoded Transaction body runs that Transaction.
//   - GET /?sql=...&version=N&compatible=M&column=INT runs an INITIALIZE
//     followed by a READ of the query, with optional declared column types.
//
// Responses are JSON-encoded protocol Responses. Requests which can't be
// decoded or fail validation receive a RESPONSE_ERROR with status 400, and
// a description of the error in the X-Error header.
type Gateway struct {
	decoder *schema.Decoder
	exec    Executor
}

// NewGateway returns a Gateway of the Executor.
func NewGateway(exec Executor) *Gateway {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)

	return &Gateway{
		decoder: decoder,
		exec:    exec,
	}
}

func (h *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var txn *pc.Transaction
	var err error

	switch r.Method {
	case "GET":
		txn, err = h.parseQueryRequest(r)
	case "POST":
		txn, err = h.parseTransactionRequest(r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, fmt.Sprintf("unknown method: %s", r.Method), http.StatusMethodNotAllowed)
		return
	}

	var id = uuid.New()
	w.Header().Set(TransactionIDHeader, id.String())

	if err != nil {
		w.Header().Set(ErrorHeader, err.Error())
		writeResponse(w, &pc.Response{Status: pc.StatusResponseError})
		return
	}

	resp, err := h.exec.RunTransaction(pc.WithTransactionID(r.Context(), id), txn)
	if r.Context().Err() != nil {
		// Request was aborted by client.
		http.Error(w, r.Context().Err().Error(), http.StatusRequestTimeout)
		return
	} else if err != nil {
		log.WithFields(log.Fields{"err": err, "id": id}).Warn("http_gateway: failed to run transaction")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	log.WithFields(log.Fields{
		"id":       id,
		"status":   resp.Status,
		"commands": len(txn.Commands),
	}).Debug("http_gateway: ran transaction")

	writeResponse(w, resp)
}

func (h *Gateway) parseQueryRequest(r *http.Request) (*pc.Transaction, error) {
	var query struct {
		SQL        string   `schema:"sql"`
		Version    int32    `schema:"version"`
		Compatible int32    `schema:"compatible"`
		Columns    []string `schema:"column"`
	}
	var q url.Values
	var err error

	if q, err = url.ParseQuery(r.URL.RawQuery); err != nil {
		return nil, err
	} else if err = h.decoder.Decode(&query, q); err != nil {
		return nil, err
	}

	var read = &pc.Command{Type: pc.CommandRead, SQL: query.SQL}
	for _, c := range query.Columns {
		var ct pc.ColumnType
		if err = ct.UnmarshalText([]byte(c)); err != nil {
			return nil, pc.ExtendContext(err, "column")
		}
		read.RecordBindings = append(read.RecordBindings, ct)
	}

	var txn = &pc.Transaction{
		Commands:          []*pc.Command{{Type: pc.CommandInitialize}, read},
		Version:           query.Version,
		CompatibleVersion: query.Compatible,
	}
	return txn, txn.Validate()
}

func (h *Gateway) parseTransactionRequest(r *http.Request) (*pc.Transaction, error) {
	var txn = new(pc.Transaction)
	var dec = json.NewDecoder(io.LimitReader(r.Body, maxTransactionBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(txn); err != nil {
		return nil, errors.WithMessage(err, "decoding Transaction")
	} else if err = txn.Validate(); err != nil {
		return nil, err
	}
	return txn, nil
}

func writeResponse(w http.ResponseWriter, resp *pc.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(StatusHeader, resp.Status.String())
	w.WriteHeader(httpStatus(resp.Status))

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithField("err", err).Warn("http_gateway: failed to write response")
	}
}

func httpStatus(s pc.Status) int {
	switch s {
	case pc.StatusOK:
		return http.StatusOK // 200.
	case pc.StatusInitializationError:
		return http.StatusServiceUnavailable // 503.
	case pc.StatusTransactionError:
		return http.StatusConflict // 409.
	case pc.StatusCommandError:
		return http.StatusUnprocessableEntity // 422.
	case pc.StatusResponseError:
		return http.StatusBadRequest // 400.
	default:
		return http.StatusInternalServerError // 500.
	}
}

const (
	TransactionIDHeader = "X-Transaction-Id"
	StatusHeader        = "X-Response-Status"
	ErrorHeader         = "X-Error"

	maxTransactionBytes = 1 << 24
)
