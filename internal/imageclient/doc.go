// Package imageclient talks to an OpenAI-compatible Images API.
//
// # Operations
//
//   - Generate(ctx, prompt): POST {base}/images/generations with a JSON body
//   - Vary(ctx, source): POST {base}/images/variations as multipart/form-data
//
// Both return the raw bytes of the first image in the response. The service
// is asked for b64_json; a url entry is downloaded with the same HTTP client.
//
// # Failures
//
// Every error is a *failure.Error:
//
//   - InvalidInput: empty prompt, empty or undecodable source (no request sent)
//   - TransportFailure: connection, timeout or body read errors
//   - ServiceFailure: non-2xx status or an error envelope
//   - DecodeFailure: malformed JSON, missing data, bad base64, non-image bytes
//
// The client performs exactly one exchange per call and keeps no state
// between calls. Callers that want a retry start a new call.
package imageclient
