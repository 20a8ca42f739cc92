package api

import (
	"errors"
	"fmt"
	"strings"
)

// Operation identifies one logical call against the load-test service.
// The set is closed: new endpoints are added as table rows, not types.
type Operation string

const (
	OpGetLoadTest            Operation = "GetLoadTest"
	OpStartTestRun           Operation = "StartTestRun"
	OpGetRunStatus           Operation = "GetRunStatus"
	OpChangeTestRunStatus    Operation = "ChangeTestRunStatus"
	OpGetTestRun             Operation = "GetTestRun"
	OpGenerateReport         Operation = "GenerateReport"
	OpGetReport              Operation = "GetReport"
	OpGetResults             Operation = "GetResults"
	OpGetTransactions        Operation = "GetTransactions"
	OpDownloadTransactionCsv Operation = "DownloadTransactionCsv"
)

// basePath is the fixed prefix shared by every templated operation.
const basePath = "v1"

// Path variable names used by the endpoint table.
const (
	VarProjectID  = "projectId"
	VarLoadTestID = "loadTestId"
	VarRunID      = "runId"
	VarReportID   = "reportId"
)

type endpoint struct {
	method   string
	template string
	vars     []string
}

var endpoints = map[Operation]endpoint{
	OpGetLoadTest:         {method: "GET", template: "projects/{projectId}/load-tests/{loadTestId}", vars: []string{VarProjectID, VarLoadTestID}},
	OpStartTestRun:        {method: "POST", template: "projects/{projectId}/load-tests/{loadTestId}/runs", vars: []string{VarProjectID, VarLoadTestID}},
	OpGetRunStatus:        {method: "GET", template: "test-runs/{runId}/status", vars: []string{VarRunID}},
	OpChangeTestRunStatus: {method: "PUT", template: "test-runs/{runId}", vars: []string{VarRunID}},
	OpGetTestRun:          {method: "GET", template: "test-runs/{runId}", vars: []string{VarRunID}},
	OpGenerateReport:      {method: "POST", template: "test-runs/{runId}/reports", vars: []string{VarRunID}},
	OpGetReport:           {method: "GET", template: "test-runs/reports/{reportId}", vars: []string{VarReportID}},
	OpGetResults:          {method: "GET", template: "test-runs/{runId}/results", vars: []string{VarRunID}},
	OpGetTransactions:     {method: "GET", template: "test-runs/{runId}/transactions", vars: []string{VarRunID}},
}

// ErrExternalReference is returned for operations that have no templated
// path and must be resolved through a URL returned by an earlier response.
// Transaction CSV downloads work this way: GetTestRun returns the reference.
var ErrExternalReference = errors.New("operation resolves via a reference URL, not the endpoint table")

// MissingPathVariableError reports a required path variable absent at
// resolution time. Resolution never produces a partially substituted path.
type MissingPathVariableError struct {
	Op       Operation
	Variable string
}

func (e *MissingPathVariableError) Error() string {
	return fmt.Sprintf("%s: missing path variable %q", e.Op, e.Variable)
}

// Resolve substitutes vars into the operation's path template and returns
// the HTTP method plus the relative path under the service base URL.
func Resolve(op Operation, vars map[string]string) (method, path string, err error) {
	if op == OpDownloadTransactionCsv {
		return "", "", ErrExternalReference
	}
	ep, ok := endpoints[op]
	if !ok {
		return "", "", fmt.Errorf("unknown operation %q", op)
	}
	path = ep.template
	for _, name := range ep.vars {
		value, ok := vars[name]
		if !ok || strings.TrimSpace(value) == "" {
			return "", "", &MissingPathVariableError{Op: op, Variable: name}
		}
		path = strings.ReplaceAll(path, "{"+name+"}", value)
	}
	return ep.method, basePath + "/" + path, nil
}
