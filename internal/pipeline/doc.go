// Package pipeline holds the domain types shared by the collection services
// and the narrow interfaces they use to reach the content store, search
// providers and supporting infrastructure.
package pipeline
