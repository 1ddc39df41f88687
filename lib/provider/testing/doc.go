// Package testing provides a reusable conformance test suite for
// implementations of the grove provider contract. Backends run the suite
// from their own tests by supplying a factory:
//
//	func TestContract(t *testing.T) {
//		grovetesting.RunProviderTests(t, "memory", func() provider.IProvider {
//			p := memory.New(provider.Config{Name: "test"})
//			_ = p.Init(context.Background())
//			return p
//		})
//	}
package testing
