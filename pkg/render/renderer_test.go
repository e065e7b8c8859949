package render_test

import (
	"strings"
	"testing"
	"time"

	"github.com/killallgit/strand/pkg/chat"
	"github.com/killallgit/strand/pkg/frame"
	"github.com/killallgit/strand/pkg/render"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestRender(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Render Suite")
}

var _ = Describe("Advance", func() {
	It("closes an eighth of the gap, minimum one", func() {
		Expect(render.Advance(0)).To(Equal(0))
		Expect(render.Advance(-5)).To(Equal(0))
		Expect(render.Advance(1)).To(Equal(1))
		Expect(render.Advance(7)).To(Equal(1))
		Expect(render.Advance(8)).To(Equal(1))
		Expect(render.Advance(9)).To(Equal(2))
		Expect(render.Advance(80)).To(Equal(10))
	})

	It("never overshoots the gap", func() {
		for gap := 1; gap <= 200; gap++ {
			Expect(render.Advance(gap)).To(BeNumerically("<=", gap))
			Expect(render.Advance(gap)).To(BeNumerically(">=", 1))
		}
	})
})

var _ = Describe("Renderer", func() {
	var (
		state *chat.StreamingState
		views []render.View
	)

	record := func(v render.View) {
		views = append(views, v)
	}

	BeforeEach(func() {
		state = chat.NewStreamingState("conv-1")
		views = nil
	})

	Describe("driven step by step", func() {
		It("keeps displayed monotonically non-decreasing and bounded by arrived", func() {
			r := render.New(state, record)
			text := strings.Repeat("streaming content ", 20)

			prev := 0
			for i := 0; i < len(text); i += 13 {
				end := i + 13
				if end > len(text) {
					end = len(text)
				}
				state.AppendText(text[i:end])
				r.Step()

				Expect(views).ToNot(BeEmpty())
				shown := len(views[len(views)-1].Text)
				Expect(shown).To(BeNumerically(">=", prev), "displayed never shrinks")
				Expect(shown).To(BeNumerically("<=", len(state.Text())), "displayed never overshoots")
				prev = shown
			}
		})

		It("closes the gap in a bounded number of ticks once arrival stops", func() {
			r := render.New(state, record)
			state.AppendText(strings.Repeat("x", 500))

			ticks := 0
			for {
				r.Step()
				ticks++
				if views[len(views)-1].Text == state.Text() {
					break
				}
				Expect(ticks).To(BeNumerically("<", 600), "gap must close")
			}
		})

		It("reveals at least one rune per tick near the tail", func() {
			r := render.New(state, record)
			state.AppendText("abc")

			r.Step()
			Expect(views[len(views)-1].Text).To(Equal("a"))
			r.Step()
			Expect(views[len(views)-1].Text).To(Equal("ab"))
			r.Step()
			Expect(views[len(views)-1].Text).To(Equal("abc"))
		})

		It("mirrors instantly with instant catch-up", func() {
			r := render.New(state, record, render.WithInstantCatchUp())
			state.AppendText("the whole thing at once")

			r.Step()
			Expect(views[len(views)-1].Text).To(Equal("the whole thing at once"))
		})

		It("does not split multibyte runes", func() {
			r := render.New(state, record)
			state.AppendText("héllo wörld ünïcode")

			for i := 0; i < 40; i++ {
				r.Step()
				shown := views[len(views)-1].Text
				Expect(strings.HasPrefix("héllo wörld ünïcode", shown)).To(BeTrue(), "got %q", shown)
			}
		})

		It("skips the render callback when nothing changed", func() {
			r := render.New(state, record)
			state.AppendText("ab")

			for i := 0; i < 10; i++ {
				r.Step()
			}
			settled := len(views)

			r.Step()
			r.Step()
			Expect(views).To(HaveLen(settled), "no re-render without change")
		})

		It("re-renders when the source list identity changes", func() {
			r := render.New(state, record)
			r.Step()
			settled := len(views)

			state.SetSources([]frame.Source{{Title: "a", URL: "https://a"}})
			r.Step()
			Expect(len(views)).To(BeNumerically(">", settled))
			Expect(views[len(views)-1].Sources).To(HaveLen(1))
		})
	})

	Describe("running on its own cadence", func() {
		It("drains remaining text and exits when the stream terminates", func() {
			done := make(chan render.View, 64)
			r := render.New(state, func(v render.View) {
				select {
				case done <- v:
				default:
				}
			}, render.WithInterval(time.Millisecond))

			state.AppendText("finish me")
			r.Start()
			time.Sleep(5 * time.Millisecond)
			state.Complete()
			r.Wait()

			var last render.View
			for {
				select {
				case v := <-done:
					last = v
					continue
				default:
				}
				break
			}
			Expect(last.Text).To(Equal("finish me"), "displayed equals arrived after exit")
			Expect(last.Done).To(BeTrue())
		})

		It("stops promptly and idempotently", func() {
			r := render.New(state, record, render.WithInterval(time.Millisecond))
			r.Start()
			r.Stop()
			r.Stop()

			exited := make(chan struct{})
			go func() {
				r.Wait()
				close(exited)
			}()
			Eventually(exited, time.Second).Should(BeClosed())
		})
	})
})
