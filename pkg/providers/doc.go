// Package providers groups the hosted chat model adapters.
//
// Each sub-package implements [github.com/jplck/mf-samples-with-speckit/pkg/modeladapter.Completer]
// on top of the embeddable [github.com/jplck/mf-samples-with-speckit/pkg/modeladapter.ModelAdapter]:
//   - [github.com/jplck/mf-samples-with-speckit/pkg/providers/openai]: OpenAI Chat Completions, including Azure OpenAI deployments
package providers
