package sequencer

import (
	"testing"

	"github.com/cbegin/axml-go/internal/axml"
)

func BenchmarkFlatten(b *testing.B) {
	doc, err := axml.Parse(`<axml>
		<instruments><instrument id="p" type="sawtooth"/></instruments>
		<patterns>
			<pattern id="run"><note pitch="C4" duration="s"/><note pitch="E4" duration="s"/><note pitch="G4" duration="s"/></pattern>
			<pattern id="bar">
				<play pattern="run" duration="0.75"/><play pattern="run" duration="0.75"/>
				<chord duration="q"><note pitch="C4"/><note pitch="E4"/><note pitch="G4"/></chord>
			</pattern>
		</patterns>
		<tracks><track instrument="p">
			<play pattern="bar" duration="2.5"/><play pattern="bar" duration="2.5"/>
			<play pattern="bar" duration="2.5"/><play pattern="bar" duration="2.5"/>
		</track></tracks>
	</axml>`)
	if err != nil {
		b.Fatalf("parse failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Flatten(doc)
	}
}
